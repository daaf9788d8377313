// Package config loads the surface and host settings from the environment,
// with an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/yitech/candlechart/protocol"
	"github.com/yitech/candlechart/scheduler"
)

// Surface holds the settings of the chart surface binary.
type Surface struct {
	GRPCAddr   string
	HTTPAddr   string
	Throttle   time.Duration
	MaxCandles int
	ChartType  protocol.ChartType
	Timeframe  string
	Headless   bool
	LogLevel   string
	LogFile    string
}

// Host holds the settings of the reference host binary.
type Host struct {
	ServerAddr    string
	WSURL         string
	Transport     string // "grpc" | "ws"
	Source        string // "sim" | "binance" | "okx" | "bybit" | "redis" | "merged"
	Symbol        string
	Interval      string
	Backfill      int
	Tick          time.Duration
	RedisAddr     string
	RedisPassword string
	LogLevel      string
}

var (
	transports = []string{"grpc", "ws"}
	sources    = []string{"sim", "binance", "okx", "bybit", "redis", "merged"}
)

// LoadDotEnv loads path into the environment without overriding variables
// that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("config: load %s: %w", path, err)
	}
	return nil
}

// LoadSurface reads the surface settings.
func LoadSurface() (*Surface, error) {
	ct, ok := protocol.ParseChartType(getEnv("CHART_TYPE", string(protocol.Candlestick)))
	if !ok {
		return nil, fmt.Errorf("config: CHART_TYPE must be candlestick or line")
	}
	cfg := &Surface{
		GRPCAddr:   getEnv("GRPC_ADDR", ":50051"),
		HTTPAddr:   getEnv("HTTP_ADDR", ":8080"),
		Throttle:   getEnvMillis("THROTTLE_MS", scheduler.DefaultInterval),
		MaxCandles: getEnvInt("MAX_CANDLES", 5000),
		ChartType:  ct,
		Timeframe:  getEnv("TIMEFRAME", "1m"),
		Headless:   getEnvBool("HEADLESS", false),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		LogFile:    getEnv("LOG_FILE", "surface.log"),
	}
	if cfg.Throttle <= 0 {
		return nil, fmt.Errorf("config: THROTTLE_MS must be positive")
	}
	return cfg, nil
}

// LoadHost reads the host settings.
func LoadHost() (*Host, error) {
	cfg := &Host{
		ServerAddr:    getEnv("SERVER_ADDR", "localhost:50051"),
		WSURL:         getEnv("WS_URL", "ws://localhost:8080/ws"),
		Transport:     strings.ToLower(getEnv("TRANSPORT", "grpc")),
		Source:        strings.ToLower(getEnv("SOURCE", "sim")),
		Symbol:        getEnv("SYMBOL", "BTCUSDT"),
		Interval:      getEnv("INTERVAL", "1m"),
		Backfill:      getEnvInt("BACKFILL", 200),
		Tick:          getEnvMillis("TICK_MS", time.Second),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
	}
	if !contains(transports, cfg.Transport) {
		return nil, fmt.Errorf("config: TRANSPORT %q not one of %v", cfg.Transport, transports)
	}
	if !contains(sources, cfg.Source) {
		return nil, fmt.Errorf("config: SOURCE %q not one of %v", cfg.Source, sources)
	}
	if cfg.Backfill < 0 {
		return nil, fmt.Errorf("config: BACKFILL must not be negative")
	}
	return cfg, nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvMillis(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Millisecond
		}
	}
	return fallback
}
