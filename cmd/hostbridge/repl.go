package main

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	printedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#CCCCCC"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

const (
	replPrompt  = "hb> "
	maxEntries  = 50
	shownValues = 12
)

func newReplCmd(flags *globalFlags) *cobra.Command {
	var lineMode bool
	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Interactive read-eval-print loop",
		Long: `Starts an interactive session with one runtime thread.

A full-screen interface is used when stdin and stdout are terminals;
otherwise expressions are read one per line from stdin.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			interactive := !lineMode && isTerminal(os.Stdin) && isTerminal(os.Stdout)
			if !interactive {
				return runLineRepl(ctx, flags, cmd.InOrStdin(), cmd.OutOrStdout())
			}
			return runInteractive(ctx, flags)
		},
	}
	cmd.Flags().BoolVar(&lineMode, "plain", false, "read one expression per line even on a terminal")
	return cmd
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// runLineRepl evaluates one expression per input line.
func runLineRepl(ctx context.Context, flags *globalFlags, in io.Reader, out io.Writer) error {
	s, err := openSession(ctx, flags, out)
	if err != nil {
		return err
	}
	sc := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, replPrompt)
		if !sc.Scan() {
			break
		}
		src := strings.TrimSpace(sc.Text())
		if src == "" {
			continue
		}
		if src == "exit()" {
			break
		}
		res, err := s.evaluate(ctx, src)
		if err != nil {
			_ = s.close(ctx, 1)
			return err
		}
		fmt.Fprintln(out, res)
	}
	fmt.Fprintln(out)
	if err := sc.Err(); err != nil {
		_ = s.close(ctx, 1)
		return err
	}
	return s.close(ctx, 0)
}

type entry struct {
	src     string
	printed string
	res     result
}

type replModel struct {
	ctx     context.Context
	err     error
	sess    *session
	printed *bytes.Buffer
	input   textinput.Model
	entries []entry
	history []string
	histIdx int
	busy    bool
}

type evalMsg struct {
	err     error
	src     string
	printed string
	res     result
}

func newReplModel(ctx context.Context, sess *session, printed *bytes.Buffer) *replModel {
	ti := textinput.New()
	ti.Prompt = promptStyle.Render(replPrompt)
	ti.Placeholder = "expression"
	ti.Width = 72
	ti.Focus()
	return &replModel{ctx: ctx, sess: sess, printed: printed, input: ti}
}

func (m *replModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *replModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "ctrl+d", "esc":
			return m, tea.Quit

		case "up":
			if m.histIdx > 0 {
				m.histIdx--
				m.input.SetValue(m.history[m.histIdx])
				m.input.CursorEnd()
			}
			return m, nil

		case "down":
			if m.histIdx < len(m.history) {
				m.histIdx++
				if m.histIdx == len(m.history) {
					m.input.SetValue("")
				} else {
					m.input.SetValue(m.history[m.histIdx])
				}
				m.input.CursorEnd()
			}
			return m, nil

		case "enter":
			src := strings.TrimSpace(m.input.Value())
			if src == "" || m.busy {
				return m, nil
			}
			if src == "exit()" {
				return m, tea.Quit
			}
			m.history = append(m.history, src)
			m.histIdx = len(m.history)
			m.input.SetValue("")
			m.busy = true
			return m, m.evaluate(src)
		}

	case evalMsg:
		m.busy = false
		if msg.err != nil {
			m.err = msg.err
			return m, tea.Quit
		}
		m.entries = append(m.entries, entry{src: msg.src, printed: msg.printed, res: msg.res})
		if len(m.entries) > maxEntries {
			m.entries = m.entries[len(m.entries)-maxEntries:]
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// evaluate runs on a command goroutine. busy keeps evaluations from
// overlapping on the session's thread.
func (m *replModel) evaluate(src string) tea.Cmd {
	return func() tea.Msg {
		res, err := m.sess.evaluate(m.ctx, src)
		printed := m.printed.String()
		m.printed.Reset()
		return evalMsg{src: src, printed: printed, res: res, err: err}
	}
}

func (m *replModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("hostbridge"))
	b.WriteString(fmt.Sprintf(" thread %d\n\n", m.sess.th.ID()))

	start := max(0, len(m.entries)-shownValues)
	for _, e := range m.entries[start:] {
		b.WriteString(promptStyle.Render(replPrompt))
		b.WriteString(e.src)
		b.WriteString("\n")
		if e.printed != "" {
			b.WriteString(printedStyle.Render(strings.TrimRight(e.printed, "\n")))
			b.WriteString("\n")
		}
		if e.res.failed() {
			b.WriteString(errorStyle.Render(e.res.String()))
		} else {
			b.WriteString(resultStyle.Render(e.res.shown))
			b.WriteString(" ")
			b.WriteString(typeStyle.Render(":: " + e.res.typ))
		}
		b.WriteString("\n\n")
	}

	b.WriteString(m.input.View())
	b.WriteString("\n\n")
	if m.busy {
		b.WriteString(helpStyle.Render("evaluating..."))
	} else {
		b.WriteString(helpStyle.Render("enter evaluate • ↑/↓ history • esc quit"))
	}
	return b.String()
}

func runInteractive(ctx context.Context, flags *globalFlags) error {
	printed := &bytes.Buffer{}
	s, err := openSession(ctx, flags, printed)
	if err != nil {
		return err
	}
	m := newReplModel(ctx, s, printed)
	if _, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run(); err != nil {
		_ = s.close(ctx, 1)
		return err
	}
	code := 0
	if m.err != nil {
		code = 1
	}
	if err := s.close(ctx, code); err != nil {
		return err
	}
	return m.err
}
