package cli

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/leonletto/carlot/internal/types"
)

// now is the clock relative timestamps are measured against.
var now = time.Now

// formatRelativeTime formats t relative to now.
func formatRelativeTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	diff := now().Sub(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	case diff < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
	default:
		return t.Local().Format("Jan 2")
	}
}

// formatDuration renders an uptime like "3h12m".
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	default:
		return fmt.Sprintf("%dd%dh", int(d.Hours())/24, int(d.Hours())%24)
	}
}

// truncate shortens s to maxLen runes, ending in "..." when cut.
func truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string([]rune(s)[:maxLen])
	}
	return string([]rune(s)[:maxLen-3]) + "..."
}

// shortID is the first eight characters of a UUID, enough to tell users
// apart on screen.
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

// displayName prefers the profile's name over the raw id.
func displayName(p *types.Profile, id string) string {
	if p != nil && p.DisplayName != "" {
		return p.DisplayName
	}
	return shortID(id)
}

// wordWrap wraps text to width runes per line. Existing newlines are kept.
func wordWrap(text string, width int) string {
	var out []string
	for _, para := range strings.Split(text, "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			out = append(out, "")
			continue
		}
		line := words[0]
		for _, word := range words[1:] {
			if utf8.RuneCountInString(line)+1+utf8.RuneCountInString(word) <= width {
				line += " " + word
				continue
			}
			out = append(out, line)
			line = word
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// padLine pads or cuts line to exactly length runes.
func padLine(line string, length int) string {
	n := utf8.RuneCountInString(line)
	if n >= length {
		return string([]rune(line)[:length])
	}
	return line + strings.Repeat(" ", length-n)
}

// boxed draws rows inside a single-line border of the given inner width.
// Each row is a block of lines; blocks are separated by a rule.
func boxed(blocks [][]string, width int) string {
	var b strings.Builder
	b.WriteString("┌" + strings.Repeat("─", width) + "┐\n")
	for i, block := range blocks {
		for _, line := range block {
			b.WriteString("│ " + padLine(line, width-1) + "│\n")
		}
		if i < len(blocks)-1 {
			b.WriteString("├" + strings.Repeat("─", width) + "┤\n")
		}
	}
	b.WriteString("└" + strings.Repeat("─", width) + "┘\n")
	return b.String()
}
