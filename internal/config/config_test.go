package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), FileName)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadOverridesDefaults(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, `
[accelerate]
threshold = 2.5
ml_mode = true

[unit]
name = "fastpath"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	want := Default()
	want.Accelerate.Threshold = 2.5
	want.Accelerate.MLMode = true
	want.Unit.Name = "fastpath"
	want.Path = path
	if diff := cmp.Diff(want, cfg, cmpopts.IgnoreUnexported(Config{})); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
	if !cfg.IsSet("accelerate", "threshold") {
		t.Error("threshold should be reported as set")
	}
	if cfg.IsSet("accelerate", "iterations") {
		t.Error("iterations should not be reported as set")
	}
}

func TestLoadErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name, content, want string
	}{
		{"syntax", "[accelerate\n", "failed to parse TOML"},
		{"unknown key", "[accelerate]\nthreshhold = 1.0\n", "unknown keys: accelerate.threshhold"},
		{"zero iterations", "[accelerate]\niterations = 0\n", "iterations must be at least 1"},
		{"negative max", "[accelerate]\nmax_targets = -1\n", "max_targets must not be negative"},
		{"empty output", "[accelerate]\noutput = \" \"\n", "output must not be empty"},
		{"bad unit name", "[unit]\nname = \"my-ext\"\n", "not a valid Rust identifier"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Load(writeConfig(t, tt.content))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestFind(t *testing.T) {
	t.Parallel()
	cfg, err := Find(t.TempDir())
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if diff := cmp.Diff(Default(), cfg, cmpopts.IgnoreUnexported(Config{})); diff != "" {
		t.Errorf("expected defaults (-want +got):\n%s", diff)
	}

	path := writeConfig(t, "[accelerate]\niterations = 7\n")
	cfg, err = Find(filepath.Dir(path))
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if cfg.Accelerate.Iterations != 7 || cfg.Path != path {
		t.Errorf("got iterations %d from %q", cfg.Accelerate.Iterations, cfg.Path)
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	t.Parallel()
	src, err := Default().Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !strings.HasPrefix(src, "# rustify configuration.") {
		t.Errorf("missing header:\n%s", src)
	}
	var got Config
	if _, err := toml.Decode(src, &got); err != nil {
		t.Fatalf("decode: %v\n%s", err, src)
	}
	if diff := cmp.Diff(Default(), got, cmpopts.IgnoreUnexported(Config{})); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}
