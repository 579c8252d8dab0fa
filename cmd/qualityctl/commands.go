package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/newproject8/returnfeed-backend-sub001/pkg/config"
	"github.com/newproject8/returnfeed-backend-sub001/pkg/quality"
	"github.com/newproject8/returnfeed-backend-sub001/pkg/quality/codecpref"
	"github.com/newproject8/returnfeed-backend-sub001/pkg/quality/session"
	"github.com/newproject8/returnfeed-backend-sub001/pkg/quality/testutil"
)

func loadConfig(c *cli.Context) (*config.Config, error) {
	var (
		conf *config.Config
		err  error
	)
	if path := c.String("config"); path != "" {
		conf, err = config.Load(path)
	} else {
		conf, err = config.Parse(nil, true)
	}
	if err != nil {
		return nil, err
	}
	if c.Bool("dev") {
		conf.Logging.Development = true
		conf.Logging.Level = "debug"
	}
	if lvl := c.String("log-level"); lvl != "" {
		conf.Logging.Level = lvl
	}
	return conf, nil
}

func replayTrace(c *cli.Context) error {
	conf, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger, err := conf.Logging.Build()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	trace, err := testutil.LoadTrace(c.String("trace"))
	if err != nil {
		return err
	}

	modeName := conf.Mode
	if trace.Mode != "" {
		modeName = trace.Mode
	}
	if m := c.String("mode"); m != "" {
		modeName = m
	}
	mode, err := quality.ParseMode(modeName)
	if err != nil {
		return err
	}
	qc, err := conf.QualityConfig()
	if err != nil {
		return err
	}

	out := c.App.Writer
	start := time.Unix(0, 0).UTC()
	s, err := session.New(session.Params{
		ID:      trace.Name,
		Mode:    mode,
		Config:  qc,
		Clock:   testutil.NewClock(start),
		HighRID: conf.Simulcast.HighRID,
		LowRID:  conf.Simulcast.LowRID,
		Applier: printingApplier(out),
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	ctx := context.Background()
	metrics := trace.Metrics(start)
	decisions := make([]quality.QualityDecision, 0, len(metrics))
	for _, m := range metrics {
		d, err := s.Tick(ctx, m)
		if err != nil && !quality.IsApplyError(err) {
			return err
		}
		decisions = append(decisions, d)
		fmt.Fprintln(out, formatDecision(d, start))
	}

	st := s.Stats()
	fmt.Fprintf(out, "ticks=%d changes=%d gated=%d\n", st.Ticks, st.Changes, st.Gated)

	if mismatches := trace.CheckLevels(decisions); len(mismatches) > 0 {
		for _, mm := range mismatches {
			fmt.Fprintf(out, "sample %d: expected level %s, got %s\n", mm.Index, mm.Want, mm.Got)
		}
		return errors.Errorf("%d expectation(s) failed", len(mismatches))
	}
	return nil
}

func printingApplier(w io.Writer) session.Applier {
	return session.ApplierFuncs{
		Level: func(_ context.Context, sel quality.SimulcastSelection) error {
			fmt.Fprintf(w, "  -> layer %s (%s)\n", sel.RID, sel.Level)
			return nil
		},
		Bitrate: func(_ context.Context, bps int64) error {
			fmt.Fprintf(w, "  -> bitrate %d bps\n", bps)
			return nil
		},
	}
}

func formatDecision(d quality.QualityDecision, start time.Time) string {
	var target string
	switch d.Mode {
	case quality.ModeBitrate:
		target = fmt.Sprintf("bitrate=%d", d.Bitrate)
	default:
		target = fmt.Sprintf("level=%s", d.Level)
	}
	return fmt.Sprintf("+%-6s %s %-4s conf=%.2f score=%.3f reason=%q",
		d.At.Sub(start), target, d.Direction(), d.Confidence, d.Score, d.Reason)
}

func mungeSDP(c *cli.Context) error {
	conf, err := loadConfig(c)
	if err != nil {
		return err
	}

	var raw []byte
	if in := c.String("in"); in == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(in)
	}
	if err != nil {
		return errors.Wrap(err, "could not read SDP")
	}

	opts := conf.CodecOptions()
	if bps := c.Int64("max-bitrate"); bps > 0 {
		opts.MaxVideoBitrate = bps
	}
	munged, err := codecpref.TransformSDP(string(raw), opts)
	if err != nil {
		return err
	}
	_, err = io.WriteString(c.App.Writer, munged)
	return err
}

func printConfig(c *cli.Context) error {
	conf, err := loadConfig(c)
	if err != nil {
		return err
	}
	b, err := conf.YAML()
	if err != nil {
		return err
	}
	_, err = c.App.Writer.Write(b)
	return err
}

