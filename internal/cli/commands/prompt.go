package commands

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/manifoldco/promptui"
	"golang.org/x/term"

	"github.com/ziminpro/bird/internal/session"
)

// ErrNotInteractive is returned when input is needed but stdin is not a terminal
var ErrNotInteractive = errors.New("input required but stdin is not a terminal")

// Prompter asks the user for input the flags did not provide
type Prompter interface {
	Email() (string, error)
	Password() (string, error)
	Roles(user string, current []session.Role) ([]session.Role, error)
	Confirm(label string) (bool, error)
}

// TerminalPrompter prompts on the controlling terminal
type TerminalPrompter struct{}

func (TerminalPrompter) interactive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

func (p TerminalPrompter) Email() (string, error) {
	if !p.interactive() {
		return "", ErrNotInteractive
	}
	prompt := promptui.Prompt{
		Label: "Email",
		Validate: func(s string) error {
			if !strings.Contains(s, "@") {
				return errors.New("enter an email address")
			}
			return nil
		},
	}
	return prompt.Run()
}

func (p TerminalPrompter) Password() (string, error) {
	if !p.interactive() {
		return "", ErrNotInteractive
	}
	fmt.Fprint(os.Stderr, "Password: ")
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(pw), nil
}

// Roles toggles roles one at a time until the user picks Done
func (p TerminalPrompter) Roles(user string, current []session.Role) ([]session.Role, error) {
	if !p.interactive() {
		return nil, ErrNotInteractive
	}

	const done = "Done"
	selected := slices.Clone(current)
	for {
		items := make([]string, 0, len(session.AllRoles)+1)
		for _, r := range session.AllRoles {
			mark := "[ ]"
			if slices.Contains(selected, r) {
				mark = "[x]"
			}
			items = append(items, mark+" "+string(r))
		}
		items = append(items, done)

		sel := promptui.Select{
			Label: fmt.Sprintf("Roles for %s", user),
			Items: items,
			Size:  len(items),
		}
		idx, _, err := sel.Run()
		if err != nil {
			return nil, err
		}
		if idx == len(session.AllRoles) {
			return selected, nil
		}

		role := session.AllRoles[idx]
		if i := slices.Index(selected, role); i >= 0 {
			selected = slices.Delete(selected, i, i+1)
		} else {
			selected = append(selected, role)
		}
	}
}

func (p TerminalPrompter) Confirm(label string) (bool, error) {
	if !p.interactive() {
		return false, ErrNotInteractive
	}
	prompt := promptui.Prompt{Label: label, IsConfirm: true}
	if _, err := prompt.Run(); err != nil {
		if errors.Is(err, promptui.ErrAbort) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
