package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"git.0xdad.com/tblyler/mymed/notify"
	"github.com/chzyer/readline"
)

const consoleHelp = `take <reminder id>     dismiss a sounding reminder
snooze <reminder id>   remind again in the configured snooze minutes
logout                 stop watching the reminders of the signed in user
help                   show this help`

type lineReader interface {
	Readline() (string, error)
}

// console reads take and snooze commands typed into mymed run and hands
// them to the scheduler as notification actions
type console struct {
	in      lineReader
	logout  func()
	actions chan notify.Action
}

// newConsole reading from in. logout is nil when run watches every user.
func newConsole(in lineReader, logout func()) *console {
	return &console{
		in:      in,
		logout:  logout,
		actions: make(chan notify.Action),
	}
}

// Actions typed into the console, closed once Run returns
func (c *console) Actions() <-chan notify.Action {
	return c.actions
}

// Run reads commands until the input ends or ctx is done. It returns
// errAborted on ^C.
func (c *console) Run(ctx context.Context) error {
	defer close(c.actions)

	for ctx.Err() == nil {
		line, err := c.in.Readline()
		switch {
		case errors.Is(err, io.EOF):
			// no terminal attached, keep running without a console
			return nil
		case errors.Is(err, readline.ErrInterrupt):
			return errAborted
		case err != nil:
			return err
		}

		if err := c.handle(ctx, line); err != nil {
			errLog(errorStyle.Render(err.Error()))
		}
	}

	return nil
}

func (c *console) handle(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	switch fields[0] {
	case string(notify.ActionTake), string(notify.ActionSnooze):
		if len(fields) != 2 {
			return fmt.Errorf("usage: %s <reminder id>", fields[0])
		}

		action, err := notify.ParseAction(fields[0] + ":" + fields[1])
		if err != nil {
			return err
		}

		select {
		case c.actions <- action:
		case <-ctx.Done():
		}

	case "logout":
		if c.logout == nil {
			return errors.New("mymed run was not started with a session token")
		}

		c.logout()

	case "help":
		log(consoleHelp)

	default:
		return fmt.Errorf("unknown command %s, type help for the list", fields[0])
	}

	return nil
}
