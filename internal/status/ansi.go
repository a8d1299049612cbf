package status

import "strings"

// StripANSI removes ANSI escape sequences in a single O(n) pass.
//
// Captured pane text regularly carries stray color codes and cursor moves
// even after tmux renders it. A hand-rolled scanner is used instead of a
// regex: escape-sequence regexes can backtrack badly on malformed input, and
// classification cost must stay bounded for arbitrary captures.
func StripANSI(content string) string {
	// Fast path: no ESC (0x1b) and no 8-bit CSI (0x9b) means nothing to strip.
	if strings.IndexByte(content, '\x1b') < 0 && strings.IndexByte(content, '\x9b') < 0 {
		return content
	}

	var b strings.Builder
	b.Grow(len(content))

	i := 0
	for i < len(content) {
		switch content[i] {
		case '\x1b':
			if i+1 < len(content) && content[i+1] == '[' {
				// CSI: ESC [ params ... terminated by a letter.
				i = skipCSI(content, i+2)
				continue
			}
			if i+1 < len(content) && content[i+1] == ']' {
				// OSC: ESC ] ... terminated by BEL or ST (ESC \).
				if bell := strings.IndexByte(content[i:], '\x07'); bell != -1 {
					i += bell + 1
					continue
				}
				if st := strings.Index(content[i:], "\x1b\\"); st != -1 {
					i += st + 2
					continue
				}
			}
			// Other escapes: ESC, any intermediate bytes (0x20-0x2F, e.g.
			// the '(' in the charset designation ESC ( B), then one final byte.
			i++
			for i < len(content) && content[i] >= 0x20 && content[i] <= 0x2f {
				i++
			}
			if i < len(content) {
				i++
			}
		case '\x9b':
			i = skipCSI(content, i+1)
		default:
			b.WriteByte(content[i])
			i++
		}
	}

	return b.String()
}

// skipCSI advances past CSI parameter bytes until the terminating letter.
func skipCSI(content string, start int) int {
	for j := start; j < len(content); j++ {
		c := content[j]
		if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') {
			return j + 1
		}
	}
	return len(content)
}
