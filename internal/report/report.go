// Package report prints rustify's tables for people: aligned columns with
// optional colour.
package report

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"
	"golang.org/x/term"

	"github.com/phobologic/rustify/internal/model"
)

// maxCell bounds the width of a single column.
const maxCell = 60

// UseColor resolves a --color mode (auto, on, off) for output to w.
func UseColor(mode string, w io.Writer) (bool, error) {
	switch mode {
	case "on":
		return true, nil
	case "off":
		return false, nil
	case "auto", "":
		f, ok := w.(*os.File)
		return ok && term.IsTerminal(int(f.Fd())), nil
	}
	return false, fmt.Errorf("invalid --color %q (want auto, on or off)", mode)
}

// Printer writes tables to w.
type Printer struct {
	w      io.Writer
	header *color.Color
	good   *color.Color
	warn   *color.Color
	bad    *color.Color
}

// New returns a Printer; colour escapes are emitted only when useColor is set.
func New(w io.Writer, useColor bool) *Printer {
	p := &Printer{
		w:      w,
		header: color.New(color.Bold),
		good:   color.New(color.FgGreen),
		warn:   color.New(color.FgYellow),
		bad:    color.New(color.FgRed),
	}
	for _, c := range []*color.Color{p.header, p.good, p.warn, p.bad} {
		if useColor {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

// Hotspots prints a profile.
func (p *Printer) Hotspots(hotspots []model.Hotspot) {
	if len(hotspots) == 0 {
		fmt.Fprintln(p.w, "no hotspots above threshold")
		return
	}
	rows := make([][]string, len(hotspots))
	for i, h := range hotspots {
		rows[i] = []string{h.Func, uitoa(h.Line), pct(h.Percent)}
	}
	p.table([]string{"Function", "Line", "% Time"}, rows, nil)
}

// Summary prints the outcome of an accelerate run.
func (p *Printer) Summary(unitDir string, rows []model.SummaryRow, fallback int, timings []model.Timing) {
	cells := make([][]string, len(rows))
	for i, r := range rows {
		cells[i] = []string{r.Func, uitoa(r.Line), pct(r.Percent), r.Translation, r.Status}
	}
	p.table([]string{"Function", "Line", "% Time", "Translation", "Status"}, cells, func(col int, v string) *color.Color {
		if col != 4 {
			return nil
		}
		return p.statusColor(v)
	})

	if len(timings) > 0 {
		fmt.Fprintln(p.w)
		bench := make([][]string, len(timings))
		for i, t := range timings {
			speedup := "-"
			if t.Skipped == "" {
				speedup = strconv.FormatFloat(t.Speedup(), 'f', 2, 64) + "x"
			}
			bench[i] = []string{t.Func, dur(t.Python), dur(t.Rust), speedup, t.Skipped}
		}
		p.table([]string{"Function", "Python", "Rust", "Speedup", "Note"}, bench, nil)
	}

	fmt.Fprintln(p.w)
	fmt.Fprintf(p.w, "Generated: %s\n", unitDir)
	if fallback > 0 {
		p.warn.Fprintf(p.w, "%d function(s) used fallback translation; review the generated code\n", fallback)
	}
}

// Scan prints a translatability report.
func (p *Printer) Scan(files []model.ScanFile) {
	var rows [][]string
	full, partial := 0, 0
	for _, f := range files {
		if f.Err != "" {
			rows = append(rows, []string{f.Path, "-", "-", "error", f.Err})
			continue
		}
		for _, fn := range f.Functions {
			if fn.Status == model.Full {
				full++
			} else {
				partial++
			}
			rows = append(rows, []string{f.Path, fn.Name, uitoa(fn.Line), string(fn.Status), strings.Join(fn.Unsupported, ", ")})
		}
	}
	p.table([]string{"File", "Function", "Line", "Status", "Unsupported"}, rows, func(col int, v string) *color.Color {
		if col != 3 {
			return nil
		}
		return p.statusColor(v)
	})
	fmt.Fprintf(p.w, "\n%d fully translatable, %d partial\n", full, partial)
}

func (p *Printer) statusColor(v string) *color.Color {
	switch {
	case v == "Success" || v == string(model.Full):
		return p.good
	case strings.Contains(v, "echo") || v == "error":
		return p.bad
	default:
		return p.warn
	}
}

// table pads by display width so wide characters line up; colour is applied
// after padding so escapes do not count toward the width.
func (p *Printer) table(columns []string, rows [][]string, style func(col int, v string) *color.Color) {
	widths := make([]int, len(columns))
	for i, c := range columns {
		widths[i] = runewidth.StringWidth(c)
	}
	for _, row := range rows {
		for i, cell := range row {
			row[i] = truncate(cell, maxCell)
			widths[i] = max(widths[i], runewidth.StringWidth(row[i]))
		}
	}

	header := make([]string, len(columns))
	for i, c := range columns {
		header[i] = p.header.Sprint(runewidth.FillRight(c, widths[i]))
	}
	fmt.Fprintln(p.w, strings.TrimRight(strings.Join(header, "  "), " "))

	for _, row := range rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			padded := runewidth.FillRight(cell, widths[i])
			if i == len(row)-1 {
				padded = cell
			}
			if style != nil {
				if c := style(i, cell); c != nil {
					padded = c.Sprint(padded)
				}
			}
			cells[i] = padded
		}
		fmt.Fprintln(p.w, strings.TrimRight(strings.Join(cells, "  "), " "))
	}
}

func truncate(value string, width int) string {
	if runewidth.StringWidth(value) <= width {
		return value
	}
	return runewidth.Truncate(value, width, "...")
}

func uitoa(n uint32) string { return strconv.FormatUint(uint64(n), 10) }

func pct(p float32) string { return strconv.FormatFloat(float64(p), 'f', 2, 32) }

func dur(d time.Duration) string {
	if d.Seconds() == 0 {
		return "-"
	}
	return strconv.FormatFloat(d.Seconds()*1000, 'f', 3, 64) + "ms"
}
