package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
)

var errAborted = errors.New("input aborted")

type prompter struct {
	rl *readline.Instance
}

func newPrompter() (*prompter, error) {
	rl, err := readline.NewEx(&readline.Config{
		InterruptPrompt:     "^C",
		EOFPrompt:           "exit",
		HistoryLimit:        -1,
		FuncFilterInputRune: filterInput,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set up prompt: %w", err)
	}

	return &prompter{rl: rl}, nil
}

func filterInput(r rune) (rune, bool) {
	switch r {
	case readline.CharCtrlZ:
		return r, false
	}
	return r, true
}

func isEOF(err error) bool {
	return err == io.EOF || err == readline.ErrInterrupt
}

func (p *prompter) Close() error {
	return p.rl.Close()
}

func (p *prompter) line(label string) (string, error) {
	p.rl.SetPrompt(label + ": ")

	line, err := p.rl.Readline()
	if isEOF(err) {
		return "", errAborted
	}

	if err != nil {
		return "", err
	}

	return strings.TrimSpace(line), nil
}

func (p *prompter) required(label string) (string, error) {
	value, err := p.line(label)
	if err != nil {
		return "", err
	}

	if value == "" {
		return "", fmt.Errorf("no %s provided", label)
	}

	return value, nil
}

func (p *prompter) withDefault(label, fallback string) (string, error) {
	if fallback != "" {
		label = fmt.Sprintf("%s [%s]", label, fallback)
	}

	value, err := p.line(label)
	if err != nil {
		return "", err
	}

	if value == "" {
		return fallback, nil
	}

	return value, nil
}

func (p *prompter) password(label string) (string, error) {
	password, err := p.rl.ReadPassword(label + ": ")
	if isEOF(err) {
		return "", errAborted
	}

	if err != nil {
		return "", err
	}

	return string(password), nil
}

func (p *prompter) yesNo(label string, fallback bool) (bool, error) {
	hint := "y/N"
	if fallback {
		hint = "Y/n"
	}

	value, err := p.line(fmt.Sprintf("%s (%s)", label, hint))
	if err != nil {
		return false, err
	}

	switch strings.ToLower(value) {
	case "":
		return fallback, nil
	case "y", "yes":
		return true, nil
	case "n", "no":
		return false, nil
	}

	return false, fmt.Errorf("%q is not yes or no", value)
}

func (p *prompter) integer(label string, fallback int) (int, error) {
	value, err := p.withDefault(label, strconv.Itoa(fallback))
	if err != nil {
		return 0, err
	}

	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not a number", label, value)
	}

	return n, nil
}
