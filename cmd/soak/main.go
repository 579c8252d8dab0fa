// Soak runner for long-duration controller testing.
//
// This tool drives a level session and a bitrate session with a seeded mix
// of synthetic network conditions on a virtual clock and checks the
// controller invariants after every decision: bounded history, the switch
// budget per window, the minimum interval between automatic switches, and
// bitrate bounds. Virtual time runs as fast as the controllers allow, so
// a 24h soak finishes in seconds to minutes.
//
// Usage:
//
//	go run ./cmd/soak -duration 24h
//	go run ./cmd/soak -duration 1h -seed 7 -config quality.yaml
//
// Exposes pprof (and /metrics) at :6060 for live profiling:
//
//	curl http://localhost:6060/debug/pprof/heap > heap.pprof
//	go tool pprof heap.pprof
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof" // Enable pprof endpoints
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/newproject8/returnfeed-backend-sub001/pkg/config"
	"github.com/newproject8/returnfeed-backend-sub001/pkg/quality"
	telemetry "github.com/newproject8/returnfeed-backend-sub001/pkg/telemetry/prometheus"
)

// SoakResult contains the results of a soak test run.
type SoakResult struct {
	Duration      time.Duration // virtual
	WallTime      time.Duration
	Samples       int
	LevelSwitches int
	RateChanges   int
	FinalLevel    quality.QualityLevel
	FinalBitrate  int64
	PeakHeapMB    float64
	TotalGCCycles uint32
	Violations    int
	Status        string
}

func main() {
	duration := flag.Duration("duration", 24*time.Hour, "Virtual test duration (e.g., 1h, 24h)")
	seed := flag.Int64("seed", 1, "Seed for the synthetic traces")
	pprofPort := flag.Int("pprof-port", 6060, "Port for pprof and /metrics")
	configPath := flag.String("config", "", "Optional quality config file")
	flag.Parse()

	conf, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	logger, err := conf.Logging.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()

	fmt.Printf("Quality Soak Test Runner\n")
	fmt.Printf("========================\n")
	fmt.Printf("Duration: %v (virtual)\n", *duration)
	fmt.Printf("Seed:     %d\n", *seed)
	fmt.Printf("Pprof:    http://localhost:%d/debug/pprof/\n", *pprofPort)
	fmt.Printf("\n")

	reg := prometheus.NewRegistry()
	metrics, err := telemetry.NewMetrics(reg, prometheus.Labels{"run": "soak"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "metrics: %v\n", err)
		os.Exit(2)
	}
	http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	// Start pprof server in background
	go func() {
		addr := fmt.Sprintf(":%d", *pprofPort)
		if err := http.ListenAndServe(addr, nil); err != nil {
			logger.Warn("pprof server failed", zap.Error(err))
		}
	}()

	// Set up graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		fmt.Printf("\nReceived %v, shutting down gracefully...\n", sig)
		cancel()
	}()

	qc, err := conf.QualityConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	result := runSoakTest(ctx, soakParams{
		Duration: *duration,
		Seed:     *seed,
		Config:   qc,
		Logger:   logger,
		Metrics:  metrics,
		Status:   os.Stdout,
	})

	printSummary(result)

	if result.Status == "PASS" {
		os.Exit(0)
	}
	os.Exit(1)
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Parse(nil, true)
	}
	return config.Load(path)
}

func printSummary(result SoakResult) {
	fmt.Printf("\n")
	fmt.Printf("Soak Test Complete\n")
	fmt.Printf("==================\n")
	fmt.Printf("Virtual duration:  %v\n", result.Duration.Round(time.Second))
	fmt.Printf("Wall time:         %v\n", result.WallTime.Round(time.Millisecond))
	fmt.Printf("Samples:           %d\n", result.Samples)
	fmt.Printf("Level switches:    %d\n", result.LevelSwitches)
	fmt.Printf("Bitrate changes:   %d\n", result.RateChanges)
	fmt.Printf("Final level:       %s\n", result.FinalLevel)
	fmt.Printf("Final bitrate:     %.2f Mbps\n", float64(result.FinalBitrate)/1e6)
	fmt.Printf("Peak HeapAlloc:    %.2f MB\n", result.PeakHeapMB)
	fmt.Printf("Total GC cycles:   %d\n", result.TotalGCCycles)
	fmt.Printf("Violations:        %d\n", result.Violations)
	fmt.Printf("Status:            %s\n", result.Status)
	fmt.Printf("\n")

	fmt.Printf("Pass Criteria:\n")
	fmt.Printf("  - No panics:              %s\n", checkMark(true))
	fmt.Printf("  - No invariant violations: %s\n", checkMark(result.Violations == 0))
	fmt.Printf("  - Peak memory < %d MB:    %s\n", heapLimitMB, checkMark(result.PeakHeapMB < heapLimitMB))
}

func formatDuration(d time.Duration) string {
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	s := (d % time.Minute) / time.Second
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func checkMark(pass bool) string {
	if pass {
		return "PASS"
	}
	return "FAIL"
}
