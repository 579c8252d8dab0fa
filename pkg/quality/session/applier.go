package session

import (
	"context"

	"github.com/newproject8/returnfeed-backend-sub001/pkg/quality"
)

// Applier pushes rendered decisions to the media transport. Implementations
// are called with the session lock held and should not block for long.
type Applier interface {
	// ApplyLevel activates the selected simulcast layer.
	ApplyLevel(ctx context.Context, sel quality.SimulcastSelection) error

	// ApplyBitrate sets the encoder target in bits per second.
	ApplyBitrate(ctx context.Context, bps int64) error
}

// ApplierFuncs adapts plain functions to Applier. Nil functions succeed
// without doing anything.
type ApplierFuncs struct {
	Level   func(ctx context.Context, sel quality.SimulcastSelection) error
	Bitrate func(ctx context.Context, bps int64) error
}

var _ Applier = ApplierFuncs{}

// ApplyLevel calls f.Level.
func (f ApplierFuncs) ApplyLevel(ctx context.Context, sel quality.SimulcastSelection) error {
	if f.Level == nil {
		return nil
	}
	return f.Level(ctx, sel)
}

// ApplyBitrate calls f.Bitrate.
func (f ApplierFuncs) ApplyBitrate(ctx context.Context, bps int64) error {
	if f.Bitrate == nil {
		return nil
	}
	return f.Bitrate(ctx, bps)
}
