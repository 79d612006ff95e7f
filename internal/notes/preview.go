package notes

import (
	"fmt"
	"strings"
)

// ContentPreview returns the first maxLines lines of content. When lines were
// cut, a final "..." line is appended.
func ContentPreview(content string, maxLines int) string {
	if content == "" || maxLines <= 0 {
		return content
	}
	lines := strings.SplitN(content, "\n", maxLines+1)
	if len(lines) <= maxLines {
		return content
	}
	return strings.Join(lines[:maxLines], "\n") + "\n..."
}

// CountLines returns the number of lines in content; "" has none.
func CountLines(content string) int {
	if content == "" {
		return 0
	}
	return strings.Count(content, "\n") + 1
}

// FormatWithLineNumbers renders content with cat -n style numbering (6-wide,
// right-aligned, TAB). start and end select a 1-indexed inclusive range;
// zero means the corresponding bound of the content and end = -1 means the
// last line. The second result is the total line count.
func FormatWithLineNumbers(content string, start, end int) (string, int) {
	if content == "" {
		return "", 0
	}
	lines := strings.Split(content, "\n")
	total := len(lines)

	first, last := max(start, 1), total
	if end > 0 {
		last = min(end, total)
	}
	if first > last {
		return "", total
	}

	var b strings.Builder
	for i := first; i <= last; i++ {
		if i > first {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%6d\t%s", i, lines[i-1])
	}
	return b.String(), total
}
