// Package input loads the Python source to accelerate from a file, stdin or
// a git repository.
package input

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/phobologic/rustify/internal/model"
	"github.com/phobologic/rustify/internal/proc"
)

// ErrNoInput is returned when no source was requested.
var ErrNoInput = errors.New("no input provided; pass --file, --snippet, or --git")

// Request selects one source. Snippet wins over File, File over Git.
type Request struct {
	File    string
	Snippet bool
	Stdin   io.Reader
	Git     string // repository URL or path
	GitPath string // file inside the repository
	Logger  *zap.Logger
}

// Load reads the requested source.
func Load(ctx context.Context, req Request) (model.InputSource, error) {
	log := req.Logger
	if log == nil {
		log = zap.NewNop()
	}

	switch {
	case req.Snippet:
		if req.Stdin == nil {
			return model.InputSource{}, errors.New("snippet requested but no stdin available")
		}
		code, err := io.ReadAll(req.Stdin)
		if err != nil {
			return model.InputSource{}, fmt.Errorf("reading snippet from stdin: %w", err)
		}
		log.Info("loaded snippet from stdin", zap.Int("chars", len(code)))
		return model.InputSource{Kind: model.SnippetInput, Code: string(code)}, nil

	case req.File != "":
		code, err := os.ReadFile(req.File)
		if err != nil {
			return model.InputSource{}, fmt.Errorf("reading python file: %w", err)
		}
		log.Info("loaded file input", zap.String("path", req.File), zap.Int("bytes", len(code)))
		return model.InputSource{Kind: model.FileInput, Path: req.File, Code: string(code)}, nil

	case req.Git != "":
		return loadGit(ctx, req, log)
	}
	return model.InputSource{}, ErrNoInput
}

// loadGit shallow-clones the repository into a temporary directory and reads
// one file from it. The clone is removed before returning.
func loadGit(ctx context.Context, req Request, log *zap.Logger) (model.InputSource, error) {
	if req.GitPath == "" {
		return model.InputSource{}, errors.New("--git-path is required when using --git")
	}
	if !filepath.IsLocal(req.GitPath) {
		return model.InputSource{}, fmt.Errorf("git path %q must be relative to the repository root", req.GitPath)
	}

	tmp, err := os.MkdirTemp("", "rustify-git-*")
	if err != nil {
		return model.InputSource{}, fmt.Errorf("creating clone directory: %w", err)
	}
	defer os.RemoveAll(tmp)

	repoDir := filepath.Join(tmp, "repo")
	log.Info("cloning git repository", zap.String("repo", req.Git), zap.String("path", req.GitPath))
	if _, err := proc.Combined(ctx, proc.Cmd{
		Name: "git",
		Args: []string{"clone", "--depth", "1", "--no-tags", req.Git, repoDir},
	}); err != nil {
		return model.InputSource{}, fmt.Errorf("cloning %s: %w", req.Git, err)
	}

	target := filepath.Join(repoDir, req.GitPath)
	code, err := os.ReadFile(target)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return model.InputSource{}, fmt.Errorf("git path not found in repository: %s", req.GitPath)
		}
		return model.InputSource{}, fmt.Errorf("reading %s from repository: %w", req.GitPath, err)
	}
	log.Info("loaded git input", zap.String("path", req.GitPath), zap.Int("bytes", len(code)))
	return model.InputSource{
		Kind: model.GitInput,
		Repo: req.Git,
		Path: req.GitPath,
		Code: string(code),
	}, nil
}

// ModuleName is the Python module name Materialize writes the source under.
const ModuleName = "rustify_input"

// Materialize writes src to a fresh temporary directory as
// rustify_input.py so external tools can run or import it. cleanup removes
// the directory.
func Materialize(src model.InputSource) (path string, cleanup func(), err error) {
	dir, err := os.MkdirTemp("", "rustify-input-*")
	if err != nil {
		return "", nil, fmt.Errorf("creating input directory: %w", err)
	}
	cleanup = func() { os.RemoveAll(dir) }
	path = filepath.Join(dir, ModuleName+".py")
	if err := os.WriteFile(path, []byte(src.Code), 0o644); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("writing input for %s: %w", src.Label(), err)
	}
	return path, cleanup, nil
}
