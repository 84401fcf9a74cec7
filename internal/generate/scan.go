package generate

import (
	"strings"

	"github.com/phobologic/rustify/internal/render"
)

// ExistingBlocks cuts every rendered callable out of a compilation unit.
// A block starts at a render.Marker line and ends on the line where brace
// depth returns to zero after having gone positive. Braces inside comments,
// string literals, raw strings and char literals are not counted; strings
// and block comments may span lines. A trailing block that never closes is
// dropped.
func ExistingBlocks(unit string) []string {
	var (
		blocks  []string
		current []string
		inBlock bool
		depth   int
		opened  bool
		sc      braceScanner
	)
	for _, line := range strings.Split(unit, "\n") {
		if !sc.pending() && strings.HasPrefix(strings.TrimSpace(line), render.Marker) {
			current = []string{line}
			inBlock = true
			depth = 0
			opened = false
			continue
		}
		if !inBlock {
			continue
		}
		current = append(current, line)
		opens, closes := sc.scan(line)
		if opens > 0 {
			opened = true
		}
		depth += opens - closes
		if opened && depth <= 0 {
			blocks = append(blocks, strings.Join(current, "\n")+"\n")
			current = nil
			inBlock = false
		}
	}
	return blocks
}

// braceScanner counts code braces in Rust source fed one line at a time.
type braceScanner struct {
	inStr     bool
	raw       bool
	hashes    int // closing '#' count of the current raw string
	inComment bool
}

// pending reports whether a string or block comment is still open.
func (s *braceScanner) pending() bool { return s.inStr || s.inComment }

func (s *braceScanner) scan(line string) (opens, closes int) {
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case s.inComment:
			if c == '*' && i+1 < len(line) && line[i+1] == '/' {
				s.inComment = false
				i++
			}
			continue
		case s.inStr && s.raw:
			if c == '"' && strings.HasPrefix(line[i+1:], strings.Repeat("#", s.hashes)) {
				s.inStr, s.raw = false, false
				i += s.hashes
			}
			continue
		case s.inStr:
			switch c {
			case '\\':
				i++
			case '"':
				s.inStr = false
			}
			continue
		}
		switch c {
		case 'r':
			if n, ok := rawStart(line, i); ok {
				s.inStr, s.raw, s.hashes = true, true, n
				i += n + 1
			}
		case '"':
			s.inStr = true
		case '\'':
			i = skipChar(line, i)
		case '/':
			if i+1 < len(line) && line[i+1] == '/' {
				return opens, closes
			}
			if i+1 < len(line) && line[i+1] == '*' {
				s.inComment = true
				i++
			}
		case '{':
			opens++
		case '}':
			closes++
		}
	}
	return opens, closes
}

// rawStart reports whether line[i] opens a raw string (r"..", r#".."#,
// br".."), returning its hash count.
func rawStart(line string, i int) (int, bool) {
	prev := i - 1
	if prev >= 0 && line[prev] == 'b' {
		prev--
	}
	if prev >= 0 && isIdentByte(line[prev]) {
		return 0, false
	}
	j := i + 1
	for j < len(line) && line[j] == '#' {
		j++
	}
	if j < len(line) && line[j] == '"' {
		return j - i - 1, true
	}
	return 0, false
}

// skipChar returns the index of the closing quote of a char literal opened
// at i, or i itself for a lifetime such as '_.
func skipChar(line string, i int) int {
	if i+2 < len(line) && line[i+1] != '\\' && line[i+2] == '\'' {
		return i + 2
	}
	if i+3 < len(line) && line[i+1] == '\\' {
		if k := strings.IndexByte(line[i+3:], '\''); k >= 0 {
			return i + 3 + k
		}
	}
	return i
}

func isIdentByte(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}
