package terminal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ErrAborted is returned when the operator cancels a prompt with ^C or esc.
var ErrAborted = errors.New("prompt aborted")

// Option is one entry of a single-choice menu.
type Option struct {
	Label  string
	Detail string
}

// Prompter asks the operator for decisions.
type Prompter interface {
	// Select returns the index of the chosen option.
	Select(ctx context.Context, title string, options []Option) (int, error)
	// Confirm asks a yes/no question.
	Confirm(ctx context.Context, question string, defaultYes bool) (bool, error)
}

// Menu is the bubbletea-backed Prompter.
type Menu struct {
	in  io.Reader
	out io.Writer
}

// NewMenu creates a prompter that reads keys from in and draws to out.
func NewMenu(in io.Reader, out io.Writer) *Menu {
	return &Menu{in: in, out: out}
}

// menuItem implements list.Item.
type menuItem struct {
	index  int
	label  string
	detail string
}

func (i menuItem) Title() string       { return fmt.Sprintf("%d. %s", i.index+1, i.label) }
func (i menuItem) Description() string { return i.detail }
func (i menuItem) FilterValue() string { return i.label }

type selectModel struct {
	list     list.Model
	chosen   int
	aborted  bool
	numbered map[string]int
}

func newSelectModel(title string, options []Option) selectModel {
	items := make([]list.Item, len(options))
	numbered := make(map[string]int, len(options))
	withDetail := false
	for i, o := range options {
		items[i] = menuItem{index: i, label: o.Label, detail: o.Detail}
		if i < 9 {
			numbered[fmt.Sprint(i+1)] = i
		}
		if o.Detail != "" {
			withDetail = true
		}
	}

	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = withDetail
	if !withDetail {
		delegate.SetSpacing(0)
	}

	height := len(options)*delegate.Height() + len(options)*delegate.Spacing() + 4
	l := list.New(items, delegate, 80, height)
	l.Title = title
	l.Styles.Title = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.SetShowPagination(false)

	return selectModel{list: l, chosen: -1, numbered: numbered}
}

func (m selectModel) Init() tea.Cmd { return nil }

func (m selectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.list.SetWidth(msg.Width)
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc", "q":
			m.aborted = true
			return m, tea.Quit
		case "enter":
			if item, ok := m.list.SelectedItem().(menuItem); ok {
				m.chosen = item.index
			}
			return m, tea.Quit
		}
		if idx, ok := m.numbered[msg.String()]; ok {
			m.chosen = idx
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m selectModel) View() string {
	if m.chosen >= 0 || m.aborted {
		return ""
	}
	return m.list.View()
}

// Select shows a single-choice menu.
func (mn *Menu) Select(ctx context.Context, title string, options []Option) (int, error) {
	if len(options) == 0 {
		return -1, fmt.Errorf("select %q: no options", title)
	}

	p := tea.NewProgram(newSelectModel(title, options),
		tea.WithContext(ctx),
		tea.WithInput(mn.in),
		tea.WithOutput(mn.out),
	)
	final, err := p.Run()
	if err != nil {
		if errors.Is(err, tea.ErrProgramKilled) || errors.Is(err, context.Canceled) {
			return -1, ErrAborted
		}
		return -1, fmt.Errorf("select %q: %w", title, err)
	}

	m := final.(selectModel)
	if m.aborted || m.chosen < 0 {
		return -1, ErrAborted
	}
	fmt.Fprintf(mn.out, "%s %s\n", DimStyle.Render(">"), options[m.chosen].Label)
	return m.chosen, nil
}

type confirmModel struct {
	question string
	answer   bool
	done     bool
	aborted  bool
}

func (m confirmModel) Init() tea.Cmd { return nil }

func (m confirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch strings.ToLower(key.String()) {
	case "ctrl+c", "esc":
		m.aborted = true
		return m, tea.Quit
	case "y":
		m.answer, m.done = true, true
		return m, tea.Quit
	case "n":
		m.answer, m.done = false, true
		return m, tea.Quit
	case "enter":
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

func (m confirmModel) View() string {
	if m.done || m.aborted {
		return ""
	}
	hint := "y/N"
	if m.answer {
		hint = "Y/n"
	}
	return fmt.Sprintf("%s %s ", BoldStyle.Render(m.question), DimStyle.Render("("+hint+")"))
}

// Confirm asks a yes/no question. Enter picks the default.
func (mn *Menu) Confirm(ctx context.Context, question string, defaultYes bool) (bool, error) {
	p := tea.NewProgram(confirmModel{question: question, answer: defaultYes},
		tea.WithContext(ctx),
		tea.WithInput(mn.in),
		tea.WithOutput(mn.out),
	)
	final, err := p.Run()
	if err != nil {
		if errors.Is(err, tea.ErrProgramKilled) || errors.Is(err, context.Canceled) {
			return false, ErrAborted
		}
		return false, fmt.Errorf("confirm: %w", err)
	}

	m := final.(confirmModel)
	if m.aborted {
		return false, ErrAborted
	}
	answer := "no"
	if m.answer {
		answer = "yes"
	}
	fmt.Fprintf(mn.out, "%s %s\n", question, DimStyle.Render(answer))
	return m.answer, nil
}
