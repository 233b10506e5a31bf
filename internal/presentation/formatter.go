// Package presentation renders command results as text, JSON or YAML.
package presentation

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/charmbracelet/x/ansi"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/wordwrap"
	"golang.org/x/net/html"
	"gopkg.in/yaml.v3"

	"github.com/zjrosen/wikictl/internal/textdiff"
	"github.com/zjrosen/wikictl/internal/wiki"
	"github.com/zjrosen/wikictl/internal/wikiops"
)

const (
	defaultWidth  = 100
	snippetWidth  = 60
	diffContext   = 3
	truncateTail  = "…"
	yamlIndent    = 2
	formatText    = "text"
	formatJSON    = "json"
	formatYAML    = "yaml"
	dryRunPrefix  = "(dry run) would"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	labelStyle  = lipgloss.NewStyle().Faint(true)
)

// Formatter handles output formatting. One Formatter serves a whole command
// so YAML documents are separated and tables share a width.
type Formatter struct {
	writer io.Writer
	format string
	width  int
	color  bool
	yaml   *yaml.Encoder
}

// NewFormatter creates a formatter for format ("text", "json" or "yaml";
// empty means text).
func NewFormatter(writer io.Writer, format string) *Formatter {
	if format == "" {
		format = formatText
	}
	return &Formatter{
		writer: writer,
		format: format,
		width:  defaultWidth,
	}
}

// WithColor enables ANSI styling of text output.
func (f *Formatter) WithColor(color bool) *Formatter {
	f.color = color
	return f
}

// WithWidth sets the wrap width for text output.
func (f *Formatter) WithWidth(width int) *Formatter {
	if width > 0 {
		f.width = width
	}
	return f
}

// Emit writes one result.
func (f *Formatter) Emit(v any) error {
	switch f.format {
	case formatJSON:
		encoder := json.NewEncoder(f.writer)
		encoder.SetIndent("", "  ")
		return encoder.Encode(v)
	case formatYAML:
		if f.yaml == nil {
			f.yaml = yaml.NewEncoder(f.writer)
			f.yaml.SetIndent(yamlIndent)
		}
		return f.yaml.Encode(v)
	case formatText:
		_, err := io.WriteString(f.writer, f.text(v))
		return err
	default:
		return fmt.Errorf("unknown output format %q", f.format)
	}
}

// Close flushes a pending YAML stream.
func (f *Formatter) Close() error {
	if f.yaml == nil {
		return nil
	}
	return f.yaml.Close()
}

func (f *Formatter) text(v any) string {
	switch v := v.(type) {
	case string:
		return line(v)
	case MessageDTO:
		return line(v.Message)
	case wiki.SiteInfo:
		return f.siteInfo(v)
	case wikiops.LoginResult:
		return line(fmt.Sprintf("Logged in as %s (user id %d)", v.UserName, v.UserID))
	case []wiki.Page:
		var b strings.Builder
		for _, p := range v {
			b.WriteString(f.page(p))
		}
		return b.String()
	case wiki.Page:
		return f.page(v)
	case wikiops.PublishResult:
		return publishResult(v)
	case wikiops.MoveResult:
		return moveResult(v)
	case wiki.MoveResult:
		return moveResult(wikiops.MoveResult{MoveResult: v})
	case wikiops.DeleteResult:
		return deleteResult(v)
	case wiki.DeleteResult:
		return deleteResult(wikiops.DeleteResult{DeleteResult: v})
	case wikiops.UploadResult:
		return uploadResult(v)
	case wiki.UploadResult:
		return uploadResult(wikiops.UploadResult{UploadResult: v})
	case []wiki.SearchHit:
		return f.searchHits(v)
	case textdiff.Result:
		return v.Render(diffContext, f.color)
	case []SessionDTO:
		return f.sessions(v)
	case []InvocationDTO:
		return f.invocations(v)
	default:
		// Types without a text form fall back to YAML.
		out, err := yaml.Marshal(v)
		if err != nil {
			return line(fmt.Sprintf("%v", v))
		}
		return string(out)
	}
}

func line(s string) string {
	return s + "\n"
}

func (f *Formatter) style(st lipgloss.Style, s string) string {
	if !f.color {
		return s
	}
	return st.Render(s)
}

func (f *Formatter) siteInfo(s wiki.SiteInfo) string {
	pairs := [][2]string{
		{"Site", s.SiteName},
		{"Generator", s.Generator},
		{"Main page", s.MainPage},
		{"Base", s.Base},
		{"Language", s.Language},
		{"Server", s.Server},
		{"Article path", s.ArticlePath},
		{"Script path", s.ScriptPath},
	}
	return f.keyValues(pairs)
}

func (f *Formatter) keyValues(pairs [][2]string) string {
	labelWidth := 0
	for _, p := range pairs {
		labelWidth = max(labelWidth, runewidth.StringWidth(p[0]))
	}
	var b strings.Builder
	for _, p := range pairs {
		if p[1] == "" {
			continue
		}
		label := runewidth.FillRight(p[0]+":", labelWidth+1)
		b.WriteString(f.style(labelStyle, label) + " " + p[1] + "\n")
	}
	return b.String()
}

func (f *Formatter) page(p wiki.Page) string {
	var b strings.Builder
	title := p.Title
	switch {
	case p.Invalid:
		title += " (invalid)"
	case p.Missing:
		title += " (missing)"
	}
	b.WriteString(f.style(headerStyle, title) + "\n")

	pairs := [][2]string{
		{"Redirected from", p.RedirectFrom},
	}
	if p.ID != 0 {
		pairs = append(pairs,
			[2]string{"Page id", fmt.Sprint(p.ID)},
			[2]string{"Revision", fmt.Sprint(p.LastRevision)},
			[2]string{"Length", fmt.Sprint(p.Length)},
			[2]string{"Touched", p.Touched},
		)
	}
	if p.Coordinates != nil {
		pairs = append(pairs, [2]string{"Coordinates", fmt.Sprintf("%.6f, %.6f", p.Coordinates.Lat, p.Coordinates.Lon)})
	}
	b.WriteString(f.keyValues(pairs))

	if p.Extract != "" {
		b.WriteString("\n" + wordwrap.String(p.Extract, f.width) + "\n")
	}
	if p.Content != "" {
		b.WriteString("\n" + p.Content)
		if !strings.HasSuffix(p.Content, "\n") {
			b.WriteString("\n")
		}
	}
	return b.String()
}

func publishResult(r wikiops.PublishResult) string {
	switch {
	case r.DryRun:
		return line(fmt.Sprintf("%s publish %s", dryRunPrefix, r.Title))
	case r.NoChange:
		return line(fmt.Sprintf("%s: no change", r.Title))
	default:
		return line(fmt.Sprintf("Saved %s (revision %d -> %d)", r.Title, r.OldRevision, r.NewRevision))
	}
}

func moveResult(r wikiops.MoveResult) string {
	if r.DryRun {
		return line(fmt.Sprintf("%s move %s -> %s", dryRunPrefix, r.From, r.To))
	}
	s := fmt.Sprintf("Moved %s -> %s", r.From, r.To)
	if r.TalkFrom != "" {
		s += fmt.Sprintf(" (talk: %s -> %s)", r.TalkFrom, r.TalkTo)
	}
	return line(s)
}

func deleteResult(r wikiops.DeleteResult) string {
	if r.DryRun {
		return line(fmt.Sprintf("%s delete %s", dryRunPrefix, r.Title))
	}
	return line(fmt.Sprintf("Deleted %s (log id %d)", r.Title, r.LogID))
}

func uploadResult(r wikiops.UploadResult) string {
	if r.DryRun {
		s := fmt.Sprintf("%s upload %s", dryRunPrefix, r.Filename)
		if r.Info != nil {
			s += fmt.Sprintf(" (%d bytes)", r.Info.Size)
		}
		return line(s)
	}
	if r.Result != "Success" {
		keys := r.WarningKeys()
		sort.Strings(keys)
		return line(fmt.Sprintf("Upload of %s returned %s: %s", r.Filename, r.Result, strings.Join(keys, ", ")))
	}
	s := fmt.Sprintf("Uploaded %s", r.Filename)
	if r.Info != nil {
		s += fmt.Sprintf(" (%d bytes) %s", r.Info.Size, r.Info.URL)
	}
	return line(s)
}

func (f *Formatter) newTable(headers ...string) *table.Table {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...)
	if f.color {
		t = t.StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return lipgloss.NewStyle()
		})
	}
	return t
}

// cell truncates s to width display columns, keeping any escape sequences
// intact.
func cell(s string, width int) string {
	return ansi.Truncate(s, width, truncateTail)
}

func (f *Formatter) searchHits(hits []wiki.SearchHit) string {
	if len(hits) == 0 {
		return line("No results")
	}
	t := f.newTable("TITLE", "WORDS", "SNIPPET")
	for _, h := range hits {
		t.Row(h.Title, fmt.Sprint(h.WordCount), cell(PlainText(h.Snippet), snippetWidth))
	}
	return t.Render() + "\n"
}

func (f *Formatter) sessions(sessions []SessionDTO) string {
	if len(sessions) == 0 {
		return line("No saved profiles")
	}
	t := f.newTable("", "PROFILE", "ENDPOINT", "USER", "UPDATED")
	for _, s := range sessions {
		marker := ""
		if s.Active {
			marker = "*"
		}
		user := s.Username
		if user == "" {
			user = f.style(labelStyle, "(anonymous)")
		}
		t.Row(marker, s.Profile, cell(s.Endpoint, 50), user, s.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return t.Render() + "\n"
}

func (f *Formatter) invocations(invs []InvocationDTO) string {
	if len(invs) == 0 {
		return line("No history")
	}
	t := f.newTable("STARTED", "COMMAND", "TARGET", "OUTCOME", "MS", "ERROR")
	for _, inv := range invs {
		t.Row(
			inv.StartedAt.Format("2006-01-02 15:04:05"),
			inv.Command,
			cell(inv.Target, 30),
			inv.Outcome,
			fmt.Sprint(inv.DurationMS),
			cell(inv.Error, 40),
		)
	}
	return t.Render() + "\n"
}

// PlainText strips markup from an HTML fragment such as a search snippet.
func PlainText(fragment string) string {
	z := html.NewTokenizer(strings.NewReader(fragment))
	var b strings.Builder
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.TrimSpace(b.String())
		case html.TextToken:
			b.Write(z.Text())
		}
	}
}
