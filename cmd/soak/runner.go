package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"math/rand"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/newproject8/returnfeed-backend-sub001/pkg/quality"
	"github.com/newproject8/returnfeed-backend-sub001/pkg/quality/session"
	"github.com/newproject8/returnfeed-backend-sub001/pkg/quality/testutil"
	telemetry "github.com/newproject8/returnfeed-backend-sub001/pkg/telemetry/prometheus"
)

const (
	segmentSamples   = 30
	statusInterval   = time.Hour // virtual
	heapLimitMB      = 100
	levelSessionID   = "soak-level"
	bitrateSessionID = "soak-bitrate"
)

type soakParams struct {
	Duration time.Duration
	Seed     int64
	Config   quality.Config
	Logger   *zap.Logger
	Metrics  *telemetry.Metrics
	Status   io.Writer
}

func runSoakTest(ctx context.Context, p soakParams) SoakResult {
	wallStart := time.Now()
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	status := p.Status
	if status == nil {
		status = io.Discard
	}

	start := time.Unix(1_700_000_000, 0).UTC()
	clock := testutil.NewClock(start)
	rng := rand.New(rand.NewSource(p.Seed))
	result := SoakResult{Status: "PASS"}

	mgr := session.NewManager(logger, p.Metrics)
	var sessions []*session.Session
	checkers := make(map[string]*checker)
	for _, sp := range []session.Params{
		{ID: levelSessionID, Mode: quality.ModeLevel, Config: p.Config, Clock: clock},
		{ID: bitrateSessionID, Mode: quality.ModeBitrate, Config: p.Config, Clock: clock},
	} {
		s, err := mgr.Create(sp)
		if err != nil {
			fmt.Fprintf(status, "ERROR: create %s: %v\n", sp.ID, err)
			result.Status = "FAIL"
			return result
		}
		sessions = append(sessions, s)
		checkers[s.ID()] = newChecker(s.Mode(), s.Config(), start)
	}

	var memStats runtime.MemStats
	lastStatus := start

	fmt.Fprintf(status, "[%s] Starting soak test...\n", formatDuration(0))

	finish := func() SoakResult {
		result.Duration = clock.Now().Sub(start)
		result.WallTime = time.Since(wallStart)
		result.FinalLevel = sessions[0].State().Level
		result.FinalBitrate = sessions[1].State().Bitrate
		runtime.ReadMemStats(&memStats)
		result.PeakHeapMB = math.Max(result.PeakHeapMB, float64(memStats.HeapAlloc)/(1024*1024))
		result.TotalGCCycles = memStats.NumGC
		if result.Violations > 0 || result.PeakHeapMB > heapLimitMB {
			result.Status = "FAIL"
		}
		return result
	}

	for {
		select {
		case <-ctx.Done():
			return finish()
		default:
		}

		elapsed := clock.Now().Sub(start)
		if elapsed >= p.Duration {
			return finish()
		}

		for _, m := range testutil.RandomSegment(clock, rng, segmentSamples, testutil.DefaultInterval) {
			for _, s := range sessions {
				d, err := s.Tick(ctx, m)
				if err != nil {
					fmt.Fprintf(status, "[%s] ERROR: %s: %v\n", formatDuration(elapsed), s.ID(), err)
					result.Violations++
					continue
				}
				for _, v := range checkers[s.ID()].check(d, s.State(), s.HistoryLen()) {
					fmt.Fprintf(status, "[%s] VIOLATION: %s: %s\n", formatDuration(d.At.Sub(start)), s.ID(), v)
					result.Violations++
				}
				if d.Changed {
					if s.Mode() == quality.ModeLevel {
						result.LevelSwitches++
					} else {
						result.RateChanges++
					}
				}
			}
			result.Samples++
		}

		// Periodic status output
		if now := clock.Now(); now.Sub(lastStatus) >= statusInterval {
			lastStatus = now
			runtime.ReadMemStats(&memStats)
			heapMB := float64(memStats.HeapAlloc) / (1024 * 1024)
			result.PeakHeapMB = math.Max(result.PeakHeapMB, heapMB)

			fmt.Fprintf(status, "[%s] Samples: %d, Level: %s, Bitrate: %.2f Mbps, Switches: %d/%d, HeapAlloc: %.2f MB\n",
				formatDuration(now.Sub(start)),
				result.Samples,
				sessions[0].State().Level,
				float64(sessions[1].State().Bitrate)/1e6,
				result.LevelSwitches,
				result.RateChanges,
				heapMB)
		}
	}
}
