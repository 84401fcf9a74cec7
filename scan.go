package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/phobologic/rustify/internal/discover"
	"github.com/phobologic/rustify/internal/model"
	"github.com/phobologic/rustify/internal/parse"
	"github.com/phobologic/rustify/internal/render"
	"github.com/phobologic/rustify/internal/toon"
)

const defaultMaxFileSize = 1_000_000 // 1 MB

type scanFlags struct {
	format       string
	maxFileSize  int64
	includeTests bool
	cachePath    string
	jobs         int
}

func newScanCmd(a *app) *cobra.Command {
	f := &scanFlags{}
	cmd := &cobra.Command{
		Use:   "scan [dir]",
		Short: "Report how much of every Python function in a tree translates",
		Long: `Discover the Python files under dir (default .), translate every top-level
function and report whether it translates fully or only partially, naming
the unsupported constructs. Nothing is written and Python is not run.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) > 0 {
				root = args[0]
			}
			return runScan(cmd.Context(), a, f, root)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.format, "format", formatTable, "output format (table|toon)")
	fl.Int64Var(&f.maxFileSize, "max-file-size", defaultMaxFileSize, "skip files larger than this many bytes")
	fl.BoolVar(&f.includeTests, "include-tests", false, "also scan test files")
	fl.StringVar(&f.cachePath, "cache", "", "reuse TOON output from this file while no source is newer")
	fl.IntVar(&f.jobs, "jobs", runtime.GOMAXPROCS(0), "files parsed concurrently")
	return cmd
}

func runScan(ctx context.Context, a *app, f *scanFlags, root string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := checkFormat(f.format); err != nil {
		return err
	}
	if f.cachePath != "" && f.format != formatTOON {
		return errors.New("--cache requires --format toon")
	}
	a.quietFor(f.format)

	root, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolving root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("root path: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s: not a directory", root)
	}

	files, err := discover.Files(ctx, root)
	if err != nil {
		return fmt.Errorf("discovering files: %w", err)
	}
	if !f.includeTests {
		files = lo.Reject(files, func(p string, _ int) bool { return discover.IsTestFile(p) })
	}
	if len(files) == 0 {
		return fmt.Errorf("no python files found under %s", root)
	}

	if f.cachePath != "" && cacheIsFresh(f.cachePath, root, files) {
		if data, err := os.ReadFile(f.cachePath); err == nil {
			a.log.Debug("serving scan from cache", zap.String("path", f.cachePath))
			_, _ = a.stdout.Write(data)
			return nil
		}
	}

	files = filterBySize(root, files, f.maxFileSize, a.log)
	if len(files) == 0 {
		return errors.New("no python files found (all exceeded size limit)")
	}

	results, err := scanFiles(ctx, root, files, f.jobs, a.log)
	if err != nil {
		return err
	}

	if f.format == formatTable {
		a.printer().Scan(results)
		return nil
	}
	output := toon.Scan(filepath.Base(root), results) + "\n"
	if f.cachePath != "" {
		if err := os.WriteFile(f.cachePath, []byte(output), 0o644); err != nil {
			a.log.Warn("could not write scan cache", zap.String("path", f.cachePath), zap.Error(err))
		}
	}
	_, _ = io.WriteString(a.stdout, output)
	return nil
}

// cacheIsFresh reports whether every file is older than the cache.
func cacheIsFresh(cachePath, root string, files []string) bool {
	cacheInfo, err := os.Stat(cachePath)
	if err != nil {
		return false
	}
	cacheMtime := cacheInfo.ModTime()

	for _, rel := range files {
		fi, err := os.Stat(filepath.Join(root, rel))
		if err != nil {
			return false
		}
		if !fi.ModTime().Before(cacheMtime) {
			return false
		}
	}
	return true
}

func filterBySize(root string, files []string, maxSize int64, log *zap.Logger) []string {
	var kept []string
	for _, rel := range files {
		fi, err := os.Stat(filepath.Join(root, rel))
		if err != nil {
			kept = append(kept, rel) // the read reports it
			continue
		}
		if fi.Size() > maxSize {
			log.Warn("skipped large file", zap.String("path", rel), zap.Int64("max_bytes", maxSize))
			continue
		}
		kept = append(kept, rel)
	}
	return kept
}

// scanFiles parses files concurrently and returns results in input order.
// Per-file failures are recorded on the result; only cancellation aborts.
func scanFiles(ctx context.Context, root string, files []string, jobs int, log *zap.Logger) ([]model.ScanFile, error) {
	results := make([]model.ScanFile, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, min(jobs, len(files))))
	for i, rel := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = scanFile(gctx, root, rel)
			if results[i].Err != "" {
				log.Warn("could not scan file", zap.String("path", rel), zap.String("error", results[i].Err))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func scanFile(ctx context.Context, root, rel string) model.ScanFile {
	out := model.ScanFile{Path: filepath.ToSlash(rel)}
	source, err := os.ReadFile(filepath.Join(root, rel))
	if err != nil {
		out.Err = strings.TrimPrefix(err.Error(), "open "+filepath.Join(root, rel)+": ")
		return out
	}
	mod, err := parse.Module(ctx, source)
	if err != nil {
		out.Err = err.Error()
		return out
	}
	for _, fn := range mod.Functions() {
		r := render.Function(model.TargetSpec{Func: fn.Name, Line: fn.Line}, mod, render.Options{})
		out.Functions = append(out.Functions, model.ScanFunction{
			Name:        fn.Name,
			Line:        fn.Line,
			Status:      r.Status,
			Unsupported: r.Unsupported,
		})
	}
	return out
}
