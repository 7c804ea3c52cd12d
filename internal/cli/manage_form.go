package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type manageFormKind int

const (
	manageFormKindHost manageFormKind = iota
	manageFormKindEndpoints
)

type manageFieldKind int

const (
	manageFieldString manageFieldKind = iota
	manageFieldBool
)

type manageFormField struct {
	Key      string
	Label    string
	Help     string
	Kind     manageFieldKind
	Value    string
	Required bool
}

type manageForm struct {
	Kind   manageFormKind
	Title  string
	IsEdit bool
	HostID string
	Fields []manageFormField
	Index  int
	Input  textinput.Model
	Error  string
	Saving bool
}

// formKeyResult tells the caller what a key press did to the form.
type formKeyResult int

const (
	formKeyHandled formKeyResult = iota
	formKeyCancel
	formKeySubmit
)

func newFormInput(width, limit int) textinput.Model {
	input := textinput.New()
	input.Prompt = "> "
	input.CharLimit = limit
	input.Width = clampInt(width-8, 20, 120)
	return input
}

func (f *manageForm) start(width int) *manageForm {
	f.Input = newFormInput(width, 2048)
	f.loadFieldIntoInput()
	f.Input.Focus()
	return f
}

func resizeFormInput(f *manageForm, width int) *manageForm {
	if f == nil {
		return nil
	}
	f.Input.Width = clampInt(width-8, 20, 120)
	return f
}

// handleKey applies one key press. Text keys go to the input unless the
// current field is a toggle.
func (f *manageForm) handleKey(msg tea.KeyMsg) (formKeyResult, tea.Cmd) {
	key := strings.ToLower(msg.String())
	kind := f.currentField().Kind
	switch key {
	case "ctrl+c", "esc":
		return formKeyCancel, nil
	case "up", "shift+tab":
		f.commitInput()
		if f.Index > 0 {
			f.Index--
		}
		f.loadFieldIntoInput()
		return formKeyHandled, nil
	case "down", "tab":
		f.commitInput()
		if f.Index < len(f.Fields)-1 {
			f.Index++
		}
		f.loadFieldIntoInput()
		return formKeyHandled, nil
	case " ", "space", "right", "l", "left", "h":
		if kind == manageFieldBool {
			f.toggleBoolField()
			return formKeyHandled, nil
		}
	case "y", "n":
		if kind == manageFieldBool {
			f.setBoolField(key == "y")
			return formKeyHandled, nil
		}
	case "enter", "ctrl+s":
		f.commitInput()
		if f.Index < len(f.Fields)-1 && key != "ctrl+s" {
			f.Index++
			f.loadFieldIntoInput()
			return formKeyHandled, nil
		}
		return formKeySubmit, nil
	}

	if kind == manageFieldBool {
		return formKeyHandled, nil
	}
	var cmd tea.Cmd
	f.Input, cmd = f.Input.Update(msg)
	f.Fields[f.Index].Value = f.Input.Value()
	return formKeyHandled, cmd
}

func (f *manageForm) currentField() manageFormField {
	if len(f.Fields) == 0 {
		return manageFormField{}
	}
	f.Index = clampInt(f.Index, 0, len(f.Fields)-1)
	return f.Fields[f.Index]
}

func (f *manageForm) commitInput() {
	if f == nil || len(f.Fields) == 0 {
		return
	}
	if f.Fields[f.Index].Kind != manageFieldString {
		return
	}
	f.Fields[f.Index].Value = strings.TrimSpace(f.Input.Value())
}

func (f *manageForm) loadFieldIntoInput() {
	if f == nil || len(f.Fields) == 0 {
		return
	}
	f.Input.SetValue(f.Fields[f.Index].Value)
	f.Input.CursorEnd()
}

func (f *manageForm) toggleBoolField() {
	v, _ := parseBool(f.currentField().Value)
	f.setBoolField(!v)
}

func (f *manageForm) setBoolField(v bool) {
	if f == nil || len(f.Fields) == 0 || f.Fields[f.Index].Kind != manageFieldBool {
		return
	}
	f.Fields[f.Index].Value = boolToYN(v)
	f.loadFieldIntoInput()
}

// values validates every field and returns the trimmed values by key.
func (f *manageForm) values() (map[string]string, error) {
	vals := make(map[string]string, len(f.Fields))
	for _, field := range f.Fields {
		v := strings.TrimSpace(field.Value)
		if field.Required && v == "" {
			return nil, fmt.Errorf("%s is required", strings.ToLower(field.Label))
		}
		if field.Kind == manageFieldBool {
			if _, ok := parseBool(v); !ok {
				return nil, fmt.Errorf("%s must be y or n", strings.ToLower(field.Label))
			}
		}
		vals[field.Key] = v
	}
	return vals, nil
}

func (f *manageForm) view(width int) string {
	header := manageTitleStyle.Render(f.Title)
	hints := manageMutedStyle.Render("tab/shift+tab or up/down: move | left/right/space: toggle | y/n: set yes/no | enter: next/save | ctrl+s: save | esc: cancel")

	lines := make([]string, 0, len(f.Fields)+6)
	for i, field := range f.Fields {
		prefix := "  "
		if i == f.Index {
			prefix = "> "
		}
		display := strings.TrimSpace(field.Value)
		if field.Kind == manageFieldBool {
			v, _ := parseBool(display)
			display = yesNo(v)
		}
		if display == "" {
			display = manageMutedStyle.Render("(empty)")
		}
		lines = append(lines, wrapOrTrim(fmt.Sprintf("%s%s: %s", prefix, field.Label, display), max(width-6, 20)))
	}

	curr := f.currentField()
	body := strings.Join(lines, "\n") + "\n\n" + curr.Label + "\n"
	if strings.TrimSpace(curr.Help) != "" {
		body += manageMutedStyle.Render(curr.Help) + "\n"
	}
	body += f.Input.View()
	if f.Saving {
		body += manageMutedStyle.Render("\nSaving...")
	}
	if strings.TrimSpace(f.Error) != "" {
		body += "\n" + manageErrorStyle.Render(f.Error)
	}

	panel := managePanelStyle.Width(max(width, 40)).Render(body)
	return lipgloss.JoinVertical(lipgloss.Left, header, hints, panel)
}
