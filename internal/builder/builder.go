// Package builder compiles a generated unit with maturin and times the
// result against the original Python.
package builder

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/phobologic/rustify/internal/proc"
)

// ErrBuildFailed wraps every maturin failure.
var ErrBuildFailed = errors.New("maturin build failed")

// DefaultMaturin is the maturin executable looked up on PATH.
const DefaultMaturin = "maturin"

// Options configures Build.
type Options struct {
	Maturin string
	UnitDir string
	DryRun  bool
	Logger  *zap.Logger
}

// Build runs `maturin develop --release` in the unit directory, installing
// the extension into the active Python environment. A dry run does nothing.
func Build(ctx context.Context, opts Options) error {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if opts.DryRun {
		log.Info("dry run: skipping maturin build", zap.String("path", opts.UnitDir))
		return nil
	}
	maturin := opts.Maturin
	if maturin == "" {
		maturin = DefaultMaturin
	}

	log.Info("building extension", zap.String("path", opts.UnitDir))
	out, err := proc.Combined(ctx, proc.Cmd{
		Name: maturin,
		Args: []string{"develop", "--release"},
		Dir:  opts.UnitDir,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBuildFailed, err)
	}
	log.Debug("maturin output", zap.ByteString("output", out))
	log.Info("maturin build completed", zap.String("path", opts.UnitDir))
	return nil
}
