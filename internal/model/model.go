// Package model defines core data structures for rustify.
package model

import (
	"fmt"
	"time"
)

// Hotspot is a single profiler record: a function and the share of total
// runtime spent in it.
type Hotspot struct {
	Func    string
	File    string
	Line    uint32
	Percent float32
}

// ProfileSummary holds hotspots ranked by Percent, descending.
type ProfileSummary struct {
	Hotspots []Hotspot
}

// TargetSpec names one function to translate.
type TargetSpec struct {
	Func    string
	Line    uint32
	Percent float32
	Reason  string
}

// InputKind identifies where the Python source came from.
type InputKind string

const (
	FileInput    InputKind = "file"
	SnippetInput InputKind = "snippet"
	GitInput     InputKind = "git"
)

// InputSource is loaded Python source plus a label describing its origin.
type InputSource struct {
	Kind InputKind
	Path string // file path; for git, the path inside the clone
	Repo string // git only
	Code string
}

// Label returns a short human-readable origin, e.g. "file:examples/euclidean.py".
func (s InputSource) Label() string {
	switch s.Kind {
	case SnippetInput:
		return "snippet:stdin"
	case GitInput:
		return fmt.Sprintf("git:%s:%s", s.Repo, s.Path)
	default:
		return "file:" + s.Path
	}
}

// FunctionStatus is the per-target outcome of generation.
type FunctionStatus string

const (
	Full    FunctionStatus = "full"
	Partial FunctionStatus = "partial"
	Echo    FunctionStatus = "echo"
)

// GeneratedFunction records what happened to one newly translated target.
type GeneratedFunction struct {
	Target     TargetSpec
	ExportName string
	Status     FunctionStatus
}

// GenerationResult is the artifact manifest produced by one generation run.
type GenerationResult struct {
	UnitDir            string
	GeneratedFunctions []string // rendered callables, in unit order
	Targets            []GeneratedFunction
	FallbackFunctions  int
}

// SummaryRow is one line of the accelerate summary.
type SummaryRow struct {
	Func        string
	Line        uint32
	Percent     float32
	Translation string
	Status      string
}

// Timing compares one target's cost in Python and in the built extension.
type Timing struct {
	Func    string
	Python  time.Duration
	Rust    time.Duration
	Skipped string // why the target could not be timed
}

// Speedup is Python time over Rust time, or 0 when either is missing.
func (t Timing) Speedup() float64 {
	if t.Python <= 0 || t.Rust <= 0 {
		return 0
	}
	return float64(t.Python) / float64(t.Rust)
}

// ScanFunction is the translatability of one function found by scan.
type ScanFunction struct {
	Name        string
	Line        uint32
	Status      FunctionStatus
	Unsupported []string
}

// ScanFile groups the functions of one scanned Python file.
type ScanFile struct {
	Path      string // relative to the scan root
	Functions []ScanFunction
	Err       string // set when the file could not be read or parsed
}
