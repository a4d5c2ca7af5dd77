package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"github.com/mrsinham/spineprep/internal/batch"
)

var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("63"))

	SubtitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244"))

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("42"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	errStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244")).
			Width(22)
)

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}

func printTitle(w io.Writer, title string) {
	fmt.Fprintln(w, TitleStyle.Render(title))
	fmt.Fprintln(w, SubtitleStyle.Render(strings.Repeat("=", len(title))))
}

func printField(w io.Writer, label string, value any) {
	fmt.Fprintf(w, "%s %v\n", labelStyle.Render(label+":"), value)
}

// progressPrinter redraws a single progress line on terminals and stays
// silent otherwise.
type progressPrinter struct {
	mu      sync.Mutex
	out     io.Writer
	bar     progress.Model
	enabled bool
	label   string
	drawn   bool
}

func newProgressPrinter(out io.Writer) *progressPrinter {
	return &progressPrinter{
		out:     out,
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		enabled: isTerminal(out),
	}
}

func (p *progressPrinter) update(label string, done, total int) {
	if !p.enabled || total == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.drawn && label != p.label {
		fmt.Fprintln(p.out)
	}
	p.label = label
	p.drawn = true
	fmt.Fprintf(p.out, "\r%-9s %s %s/%s", label, p.bar.ViewAs(float64(done)/float64(total)),
		humanize.Comma(int64(done)), humanize.Comma(int64(total)))
}

func (p *progressPrinter) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.drawn {
		fmt.Fprintln(p.out)
		p.drawn = false
	}
}

// printFailures writes one diagnostic line per failed item.
func printFailures(w io.Writer, failures []batch.Outcome) {
	for _, f := range failures {
		fmt.Fprintf(w, "  %s %s\n", errStyle.Render("✗"), f.String())
	}
}

func countStyle(n int, style lipgloss.Style) string {
	s := humanize.Comma(int64(n))
	if n == 0 {
		return s
	}
	return style.Render(s)
}
