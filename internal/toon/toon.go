// Package toon implements TOON (Token-Oriented Object Notation) encoding of
// rustify's reports.
package toon

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/phobologic/rustify/internal/model"
)

var (
	needsQuoting = regexp.MustCompile(`[,:"\\{}\[\]]`)
	looksNumeric = regexp.MustCompile(`^-?(?:0|[1-9]\d*)(?:\.\d+)?$`)
	keywords     = map[string]struct{}{
		"true":  {},
		"false": {},
		"null":  {},
	}
)

// Hotspots encodes a profile for --list-targets.
func Hotspots(source string, hotspots []model.Hotspot) string {
	var rows [][]string
	for _, h := range hotspots {
		rows = append(rows, []string{h.Func, uitoa(h.Line), percent(h.Percent)})
	}
	return strings.Join([]string{
		"source: " + encodeValue(source),
		formatTabular("hotspots", []string{"func", "line", "percent"}, rows),
	}, "\n")
}

// Summary encodes the result of an accelerate run.
func Summary(unitDir string, rows []model.SummaryRow, fallback int, timings []model.Timing) string {
	parts := []string{
		"unit: " + encodeValue(unitDir),
		"fallback_functions: " + strconv.Itoa(fallback),
	}
	var targetRows [][]string
	for _, r := range rows {
		targetRows = append(targetRows, []string{
			r.Func, uitoa(r.Line), percent(r.Percent), r.Translation, r.Status,
		})
	}
	parts = append(parts, formatTabular("targets",
		[]string{"func", "line", "percent", "translation", "status"}, targetRows))

	if len(timings) > 0 {
		var benchRows [][]string
		for _, t := range timings {
			benchRows = append(benchRows, []string{
				t.Func,
				seconds(t.Python),
				seconds(t.Rust),
				strconv.FormatFloat(t.Speedup(), 'f', 2, 64),
				t.Skipped,
			})
		}
		parts = append(parts, formatTabular("benchmarks",
			[]string{"func", "python_s", "rust_s", "speedup", "skipped"}, benchRows))
	}
	return strings.Join(parts, "\n")
}

// Scan encodes a translatability scan of a directory tree.
func Scan(root string, files []model.ScanFile) string {
	var fnRows, errRows [][]string
	counts := map[model.FunctionStatus]int{}
	for _, f := range files {
		if f.Err != "" {
			errRows = append(errRows, []string{f.Path, f.Err})
			continue
		}
		for _, fn := range f.Functions {
			counts[fn.Status]++
			fnRows = append(fnRows, []string{
				f.Path, fn.Name, uitoa(fn.Line), string(fn.Status), strings.Join(fn.Unsupported, " "),
			})
		}
	}
	parts := []string{
		"root: " + encodeValue(root),
		fmt.Sprintf("totals: full=%d partial=%d", counts[model.Full], counts[model.Partial]),
		formatTabular("functions", []string{"file", "name", "line", "status", "unsupported"}, fnRows),
	}
	if len(errRows) > 0 {
		parts = append(parts, formatTabular("errors", []string{"file", "error"}, errRows))
	}
	return strings.Join(parts, "\n")
}

func uitoa(n uint32) string { return strconv.FormatUint(uint64(n), 10) }

func percent(p float32) string { return strconv.FormatFloat(float64(p), 'f', 2, 32) }

func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 6, 64)
}

func formatTabular(name string, columns []string, rows [][]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s[%d]{%s}:", name, len(rows), strings.Join(columns, ","))
	for _, row := range rows {
		encoded := make([]string, len(row))
		for i, cell := range row {
			encoded[i] = encodeValue(cell)
		}
		fmt.Fprintf(&b, "\n  %s", strings.Join(encoded, ","))
	}
	return b.String()
}

func encodeValue(value string) string {
	switch {
	case value == "":
		return `""`
	case value != strings.TrimSpace(value), strings.ContainsAny(value, "\n\r\t"):
		return quote(value)
	}
	if _, ok := keywords[strings.ToLower(value)]; ok {
		return quote(value)
	}
	if looksNumeric.MatchString(value) {
		return value
	}
	if needsQuoting.MatchString(value) || strings.HasPrefix(value, "-") {
		return quote(value)
	}
	return value
}

func quote(value string) string {
	escaped := strings.ReplaceAll(value, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	escaped = strings.ReplaceAll(escaped, "\n", `\n`)
	escaped = strings.ReplaceAll(escaped, "\r", `\r`)
	escaped = strings.ReplaceAll(escaped, "\t", `\t`)
	return `"` + escaped + `"`
}
