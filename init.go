package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/phobologic/rustify/internal/config"
	"github.com/phobologic/rustify/internal/generate"
)

const (
	sentinelStart = "# rustify:start"
	sentinelEnd   = "# rustify:end"
)

func newInitCmd(a *app) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Write rustify.toml and ignore the generated output",
		Long: `Write a default rustify.toml into dir (default .) unless one exists, and add
a block to dir/.gitignore listing the output directory and merge sidecar.
The block is wrapped in sentinel comments so it is updated in place on
later runs without touching surrounding content.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			return runInit(a, dir, dryRun)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print what would be written without modifying any file")
	return cmd
}

func runInit(a *app, dir string, dryRun bool) error {
	if st, err := os.Stat(dir); err != nil {
		return fmt.Errorf("target directory: %w", err)
	} else if !st.IsDir() {
		return fmt.Errorf("%s: not a directory", dir)
	}

	cfgPath := filepath.Join(dir, config.FileName)
	cfg := config.Default()
	writeConfig := true
	if _, err := os.Stat(cfgPath); err == nil {
		existing, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		cfg = existing
		writeConfig = false
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("checking %s: %w", cfgPath, err)
	}

	ignorePath := filepath.Join(dir, ".gitignore")
	existing, _ := os.ReadFile(ignorePath)
	updated := applySection(string(existing), generateSection(cfg))

	if dryRun {
		if writeConfig {
			encoded, err := cfg.Encode()
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(a.stdout, "# %s\n%s\n", cfgPath, encoded)
		}
		_, _ = fmt.Fprintf(a.stdout, "# %s\n%s", ignorePath, updated)
		return nil
	}

	if writeConfig {
		encoded, err := cfg.Encode()
		if err != nil {
			return err
		}
		if err := os.WriteFile(cfgPath, []byte(encoded), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", cfgPath, err)
		}
		a.log.Info("wrote config", zap.String("path", cfgPath))
	} else {
		a.log.Info("config already present; leaving it unchanged", zap.String("path", cfgPath))
	}

	if err := os.WriteFile(ignorePath, []byte(updated), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", ignorePath, err)
	}
	a.log.Info("wrote rustify section", zap.String("path", ignorePath))
	return nil
}

// generateSection returns the sentinel-wrapped .gitignore block for cfg.
func generateSection(cfg config.Config) string {
	output := strings.TrimSuffix(filepath.ToSlash(cfg.Accelerate.Output), "/")
	lines := []string{
		sentinelStart,
		"# Generated Rust units and build artifacts; regenerate with `rustify accelerate`.",
		"/" + strings.TrimPrefix(output, "./") + "/",
		"**/" + generate.SidecarName,
		"**/target/",
		sentinelEnd,
	}
	return strings.Join(lines, "\n")
}

// applySection inserts section into content, replacing an existing sentinel
// block if present or appending if not. It is a pure function for easy testing.
func applySection(content, section string) string {
	start := strings.Index(content, sentinelStart)
	end := strings.Index(content, sentinelEnd)

	if start >= 0 && end > start {
		return content[:start] + section + content[end+len(sentinelEnd):]
	}

	if len(content) > 0 && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	if len(content) > 0 {
		content += "\n"
	}
	return content + section + "\n"
}
