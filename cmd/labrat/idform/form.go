// Package idform is the interactive prompt behind `labrat id`: it collects
// the biographical fragments and derives the labeler code from them. The
// fragments never leave the terminal; only the derived code is printed.
package idform

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"labrat/cmd/labrat/ui"
	"labrat/internal/participant"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// ErrCancelled is returned when the operator aborts the form.
var ErrCancelled = errors.New("form cancelled")

const numFields = 4

const (
	fieldBirthName = iota
	fieldBirthDay
	fieldBirthplace
	fieldMother
)

var fieldLabels = [numFields]string{
	"Family name at birth",
	"Day of the month of birth (1-31)",
	"Town or city of birth",
	"Mother's first name",
}

// Model is the bubbletea model for the labeler code form.
type Model struct {
	inputs    []textinput.Model
	focused   int
	styles    ui.Styles
	errMsg    string
	done      bool
	cancelled bool
}

// New creates the form with the first field focused.
func New() Model {
	styles := ui.DefaultStyles()

	placeholders := [numFields]struct {
		text  string
		limit int
	}{
		{"e.g. Müller", 64},
		{"1-31", 2},
		{"e.g. Bremen", 64},
		{"e.g. Anna", 64},
	}

	inputs := make([]textinput.Model, numFields)
	for i, p := range placeholders {
		ti := textinput.New()
		ti.Placeholder = p.text
		ti.CharLimit = p.limit
		ti.Width = 32
		ti.Prompt = "│ "
		ti.PromptStyle = styles.Prompt
		ti.TextStyle = styles.UserInput
		inputs[i] = ti
	}
	inputs[fieldBirthName].Focus()

	return Model{inputs: inputs, styles: styles}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.cancelled = true
			return m, tea.Quit

		case tea.KeyEnter:
			if m.focused == numFields-1 {
				if _, err := m.Fragments(); err != nil {
					m.errMsg = err.Error()
					return m, nil
				}
				m.done = true
				return m, tea.Quit
			}
			m.errMsg = ""
			return m.focusField(m.focused + 1)

		case tea.KeyTab, tea.KeyDown:
			return m.focusField((m.focused + 1) % numFields)

		case tea.KeyShiftTab, tea.KeyUp:
			return m.focusField((m.focused + numFields - 1) % numFields)
		}
	}

	var cmd tea.Cmd
	m.inputs[m.focused], cmd = m.inputs[m.focused].Update(msg)
	return m, cmd
}

func (m Model) focusField(i int) (tea.Model, tea.Cmd) {
	m.inputs[m.focused].Blur()
	m.focused = i
	return m, m.inputs[m.focused].Focus()
}

// View implements tea.Model.
func (m Model) View() string {
	if m.done || m.cancelled {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(m.styles.Title.Render("Derive your labeler code"))
	sb.WriteString("\n")
	sb.WriteString(m.styles.Subtitle.Render("The code is assembled from these answers; the answers themselves are not stored."))
	sb.WriteString("\n\n")

	for i, input := range m.inputs {
		label := fieldLabels[i]
		if i == m.focused {
			sb.WriteString(m.styles.Bold.Render(label))
		} else {
			sb.WriteString(m.styles.Muted.Render(label))
		}
		sb.WriteString("\n")
		sb.WriteString(input.View())
		sb.WriteString("\n")
	}

	if m.errMsg != "" {
		sb.WriteString("\n")
		sb.WriteString(m.styles.Error.Render("✗ " + m.errMsg))
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	sb.WriteString(m.styles.Footer.Render("Enter: next field • Tab/Shift+Tab: move • Esc: cancel"))
	sb.WriteString("\n")
	return sb.String()
}

// Fragments assembles the typed values, rejecting input the derivation
// convention cannot work with.
func (m Model) Fragments() (participant.Fragments, error) {
	dayText := strings.TrimSpace(m.inputs[fieldBirthDay].Value())
	day, err := strconv.Atoi(dayText)
	if err != nil {
		return participant.Fragments{}, fmt.Errorf("birth day must be a number, got %q", dayText)
	}

	f := participant.Fragments{
		BirthName:       strings.TrimSpace(m.inputs[fieldBirthName].Value()),
		BirthDay:        day,
		Birthplace:      strings.TrimSpace(m.inputs[fieldBirthplace].Value()),
		MotherFirstName: strings.TrimSpace(m.inputs[fieldMother].Value()),
	}
	if _, err := participant.Derive(f); err != nil {
		return participant.Fragments{}, err
	}
	return f, nil
}

// Run shows the form and returns the completed fragments.
func Run() (participant.Fragments, error) {
	p := tea.NewProgram(New())
	final, err := p.Run()
	if err != nil {
		return participant.Fragments{}, err
	}

	m, ok := final.(Model)
	if !ok || !m.done {
		return participant.Fragments{}, ErrCancelled
	}
	return m.Fragments()
}
