// Package store holds the chart's candle and volume series.
package store

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"

	"github.com/yitech/candlechart/model/candle"
)

// ErrOutOfOrder is matched by every *OutOfOrderError.
var ErrOutOfOrder = errors.New("out-of-order tick")

// OutOfOrderError is returned by Upsert when a tick's time precedes the last
// stored candle. The store is left unchanged.
type OutOfOrderError struct {
	Time int64
	Last int64
}

func (e *OutOfOrderError) Error() string {
	return fmt.Sprintf("store: tick time %d precedes last candle time %d", e.Time, e.Last)
}

func (e *OutOfOrderError) Is(target error) bool { return target == ErrOutOfOrder }

// Bar is a candle with an optional host-supplied volume.
type Bar struct {
	Candle candle.Candle
	Volume *float64
}

// Report summarises the lossy repairs made while loading a series.
type Report struct {
	Loaded     int
	Repaired   int
	Duplicates int
	Trimmed    int
}

// Result describes what a single Upsert did.
type Result struct {
	Appended bool
	Repaired bool
	Trimmed  int
}

// Store keeps candles and volume bars index-aligned and ordered by time.
//
// When maxLen > 0 the series grows freely until 2*maxLen and is then cut back
// to the newest maxLen entries.
//
// Store is not safe for concurrent use.
type Store struct {
	candles []candle.Candle
	volumes []candle.VolumeBar
	maxLen  int
	log     *slog.Logger
}

// New creates an empty store. maxLen <= 0 disables trimming.
func New(maxLen int, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{maxLen: maxLen, log: logger}
}

// SetData replaces the whole series. Input is sorted by time; for duplicate
// times the later entry wins. Candles violating the OHLC invariant are clamped.
func (s *Store) SetData(bars []Bar) Report {
	sorted := slices.Clone(bars)
	slices.SortStableFunc(sorted, func(a, b Bar) int {
		switch {
		case a.Candle.Time < b.Candle.Time:
			return -1
		case a.Candle.Time > b.Candle.Time:
			return 1
		}
		return 0
	})

	var rep Report
	candles := make([]candle.Candle, 0, len(sorted))
	volumes := make([]candle.VolumeBar, 0, len(sorted))
	for _, b := range sorted {
		c, repaired := b.Candle.Repair()
		if repaired {
			rep.Repaired++
			s.log.Warn("repaired candle bounds", "time", c.Time, "high", c.High, "low", c.Low)
		}
		if n := len(candles); n > 0 && candles[n-1].Time == c.Time {
			rep.Duplicates++
			candles[n-1] = c
			volumes[n-1] = c.Volume(b.Volume)
			continue
		}
		candles = append(candles, c)
		volumes = append(volumes, c.Volume(b.Volume))
	}
	if rep.Duplicates > 0 {
		s.log.Warn("dropped duplicate candle times", "count", rep.Duplicates)
	}

	s.candles, s.volumes = candles, volumes
	rep.Trimmed = s.trim()
	rep.Loaded = len(s.candles)
	return rep
}

// Upsert applies one tick: replace the last candle when times match, append
// when the tick is newer, reject it when older.
func (s *Store) Upsert(c candle.Candle, volume *float64) (Result, error) {
	var res Result
	if n := len(s.candles); n > 0 {
		last := s.candles[n-1].Time
		if c.Time < last {
			return res, &OutOfOrderError{Time: c.Time, Last: last}
		}
	}

	c, res.Repaired = c.Repair()
	if res.Repaired {
		s.log.Warn("repaired tick bounds", "time", c.Time, "high", c.High, "low", c.Low)
	}

	if n := len(s.candles); n > 0 && s.candles[n-1].Time == c.Time {
		s.candles[n-1] = c
		s.volumes[n-1] = c.Volume(volume)
		return res, nil
	}
	s.candles = append(s.candles, c)
	s.volumes = append(s.volumes, c.Volume(volume))
	res.Appended = true
	res.Trimmed = s.trim()
	return res, nil
}

// Clear empties both series. Calling it on an empty store is a no-op.
func (s *Store) Clear() {
	s.candles = nil
	s.volumes = nil
}

// trim applies the rolling buffer policy and returns the number of dropped
// entries.
func (s *Store) trim() int {
	if s.maxLen <= 0 || len(s.candles) <= 2*s.maxLen {
		return 0
	}
	drop := len(s.candles) - s.maxLen
	s.candles = slices.Clone(s.candles[drop:])
	s.volumes = slices.Clone(s.volumes[drop:])
	return drop
}

// Len returns the number of candles.
func (s *Store) Len() int { return len(s.candles) }

// Candles returns a copy of the candle series.
func (s *Store) Candles() []candle.Candle { return slices.Clone(s.candles) }

// Volumes returns a copy of the volume series.
func (s *Store) Volumes() []candle.VolumeBar { return slices.Clone(s.volumes) }

// First returns the oldest candle.
func (s *Store) First() (candle.Candle, bool) {
	if len(s.candles) == 0 {
		return candle.Candle{}, false
	}
	return s.candles[0], true
}

// Last returns the newest candle.
func (s *Store) Last() (candle.Candle, bool) {
	if len(s.candles) == 0 {
		return candle.Candle{}, false
	}
	return s.candles[len(s.candles)-1], true
}

// At returns the candle at index i.
func (s *Store) At(i int) candle.Candle { return s.candles[i] }

// bounds returns the half-open index range of candles with time in [xMin, xMax].
func (s *Store) bounds(xMin, xMax int64) (int, int) {
	lo := sort.Search(len(s.candles), func(i int) bool { return s.candles[i].Time >= xMin })
	hi := sort.Search(len(s.candles), func(i int) bool { return s.candles[i].Time > xMax })
	return lo, hi
}

// Window returns the candles whose time lies in [xMin, xMax]. The returned
// slice aliases the store and must not be modified or retained.
func (s *Store) Window(xMin, xMax int64) []candle.Candle {
	lo, hi := s.bounds(xMin, xMax)
	return s.candles[lo:hi]
}

// VolumeWindow is Window for the volume series.
func (s *Store) VolumeWindow(xMin, xMax int64) []candle.VolumeBar {
	lo, hi := s.bounds(xMin, xMax)
	return s.volumes[lo:hi]
}

// Nearest returns the candle whose time is closest to t.
func (s *Store) Nearest(t int64) (candle.Candle, bool) {
	n := len(s.candles)
	if n == 0 {
		return candle.Candle{}, false
	}
	i := sort.Search(n, func(i int) bool { return s.candles[i].Time >= t })
	switch {
	case i == 0:
		return s.candles[0], true
	case i == n:
		return s.candles[n-1], true
	}
	if t-s.candles[i-1].Time <= s.candles[i].Time-t {
		return s.candles[i-1], true
	}
	return s.candles[i], true
}
