// Command surface runs one chart render surface. Hosts drive it over gRPC
// (GRPC_ADDR) or WebSocket (HTTP_ADDR/ws); the same HTTP listener serves
// /health and /metrics. Without HEADLESS the chart is drawn in the terminal.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"github.com/yitech/candlechart/config"
	"github.com/yitech/candlechart/logger"
	"github.com/yitech/candlechart/plot"
	"github.com/yitech/candlechart/protocol"
	"github.com/yitech/candlechart/surface"
	"github.com/yitech/candlechart/transport"
	"github.com/yitech/candlechart/transport/rpc"
	"github.com/yitech/candlechart/transport/ws"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "surface:", err)
		os.Exit(1)
	}
}

func run() error {
	if err := config.LoadDotEnv(".env"); err != nil {
		return err
	}
	cfg, err := config.LoadSurface()
	if err != nil {
		return err
	}

	// The TUI owns the terminal, so it logs to a file; headless logs to stderr.
	logPath := cfg.LogFile
	if cfg.Headless {
		logPath = ""
	}
	out, err := logger.Output(logPath)
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	defer out.Close()
	log := logger.New("surface", logger.ParseLevel(cfg.LogLevel), out)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := surface.NewMetrics(reg)
	hub := transport.NewHub(transport.DefaultBuffer, metrics.EventDropped, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scfg := surface.Config{Throttle: cfg.Throttle, MaxCandles: cfg.MaxCandles, Timeframe: cfg.Timeframe}
	opts := []surface.Option{surface.WithSink(hub), surface.WithLogger(log), surface.WithMetrics(metrics)}

	var (
		sub   transport.Submitter
		drive func(context.Context) error
	)
	if cfg.Headless {
		s := surface.New(scfg, opts...)
		s.Handle(protocol.ChangeChartType{Type: cfg.ChartType})
		loop := surface.NewLoop(s)
		sub, drive = loop, loop.Run
	} else {
		term := plot.NewTerminal(cfg.Timeframe)
		s := surface.New(scfg, append(opts, surface.WithPlotter(term))...)
		s.Handle(protocol.ChangeChartType{Type: cfg.ChartType})
		records := make(chan protocol.Record, transport.DefaultBuffer)
		p := tea.NewProgram(newModel(s, term, records, log),
			tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))
		ps := newProgramSubmitter(records)
		sub = ps
		drive = func(context.Context) error {
			defer ps.stop()
			_, err := p.Run()
			if errors.Is(err, tea.ErrProgramKilled) {
				return nil
			}
			return err
		}
	}

	grpcSrv, err := serveGRPC(cfg.GRPCAddr, rpc.NewServer(sub, hub, log), log)
	if err != nil {
		return err
	}
	httpSrv := serveHTTP(cfg.HTTPAddr, ws.NewServer(sub, hub, reg, log).Handler(), log)

	log.Info("surface started", "grpc", cfg.GRPCAddr, "http", cfg.HTTPAddr, "headless", cfg.Headless)
	err = drive(ctx)
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if serr := httpSrv.Shutdown(shutdownCtx); serr != nil {
		log.Warn("http shutdown", "error", serr)
	}
	grpcSrv.Stop()
	log.Info("surface stopped")
	return err
}

func serveGRPC(addr string, srv *rpc.Server, log *slog.Logger) (*grpc.Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	s := grpc.NewServer()
	rpc.Register(s, srv)
	reflection.Register(s)
	go func() {
		if err := s.Serve(lis); err != nil {
			log.Error("grpc serve", "error", err)
		}
	}()
	return s, nil
}

func serveHTTP(addr string, h http.Handler, log *slog.Logger) *http.Server {
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http serve", "error", err)
		}
	}()
	return srv
}
