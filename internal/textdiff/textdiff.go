// Package textdiff computes line diffs between two revisions of wikitext.
package textdiff

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// Op is the kind of a diff line.
type Op int

const (
	OpEqual Op = iota
	OpInsert
	OpDelete
)

func (o Op) prefix() string {
	switch o {
	case OpInsert:
		return "+"
	case OpDelete:
		return "-"
	default:
		return " "
	}
}

// Line is one line of a diff, without its trailing newline.
type Line struct {
	Op   Op     `json:"op" yaml:"op"`
	Text string `json:"text" yaml:"text"`
}

// Result is a line diff from Old to New.
type Result struct {
	Title   string `json:"title" yaml:"title"`
	Lines   []Line `json:"lines" yaml:"lines"`
	Added   int    `json:"added" yaml:"added"`
	Removed int    `json:"removed" yaml:"removed"`
}

// Changed reports whether the two texts differ.
func (r Result) Changed() bool {
	return r.Added > 0 || r.Removed > 0
}

// Diff compares oldText with newText line by line.
func Diff(oldText, newText string) Result {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(oldText, newText)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var res Result
	for _, d := range diffs {
		op := OpEqual
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			op = OpInsert
		case diffmatchpatch.DiffDelete:
			op = OpDelete
		}
		for _, text := range splitLines(d.Text) {
			res.Lines = append(res.Lines, Line{Op: op, Text: text})
			switch op {
			case OpInsert:
				res.Added++
			case OpDelete:
				res.Removed++
			}
		}
	}
	return res
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}

var (
	insertStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	deleteStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	headerStyle = lipgloss.NewStyle().Bold(true)
	hunkStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
)

// Render formats r showing context unchanged lines around each change. Equal
// runs longer than that collapse into a hunk marker. color enables ANSI
// styling.
func (r Result) Render(context int, color bool) string {
	paint := func(s lipgloss.Style, text string) string {
		if !color {
			return text
		}
		return s.Render(text)
	}

	var sb strings.Builder
	sb.WriteString(paint(headerStyle, fmt.Sprintf("--- %s (remote)\n+++ %s (local)", r.Title, r.Title)))
	sb.WriteByte('\n')
	if !r.Changed() {
		sb.WriteString("(no changes)\n")
		return sb.String()
	}

	keep := make([]bool, len(r.Lines))
	for i, l := range r.Lines {
		if l.Op == OpEqual {
			continue
		}
		for j := max(0, i-context); j <= min(len(r.Lines)-1, i+context); j++ {
			keep[j] = true
		}
	}

	skipping := false
	for i, l := range r.Lines {
		if !keep[i] {
			if !skipping {
				sb.WriteString(paint(hunkStyle, fmt.Sprintf("@@ line %d @@", i+1)))
				sb.WriteByte('\n')
			}
			skipping = true
			continue
		}
		skipping = false
		text := l.Op.prefix() + l.Text
		switch l.Op {
		case OpInsert:
			text = paint(insertStyle, text)
		case OpDelete:
			text = paint(deleteStyle, text)
		}
		sb.WriteString(text)
		sb.WriteByte('\n')
	}
	return sb.String()
}
