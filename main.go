package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"git.0xdad.com/tblyler/mymed/config"
	"git.0xdad.com/tblyler/mymed/db"
	"git.0xdad.com/tblyler/mymed/logger"
	"git.0xdad.com/tblyler/mymed/metrics"
	"github.com/sirupsen/logrus"
)

func errLog(messages ...interface{}) {
	fmt.Fprintln(os.Stderr, messages...)
}

func log(messages ...interface{}) {
	fmt.Println(messages...)
}

func help() {
	errLog(strings.TrimSpace(`
usage: mymed <command> [arguments]

  run                                  fire reminders until interrupted, type
                                       take|snooze <id> to answer them
  user add|list|login
  user get [username]
  reminder add|list|due [date]
  reminder edit|delete|take <id>
  reminder snooze <id> [minutes]
  calendar [date]                      due days of a month and reminders of a date
  refill                               supply of refill tracked reminders
  history                              taken and snoozed doses, newest first
  weight add|list|insights
  weight delete <id>
  weight goal <kg>
  medicine search [term]

commands act for the user of MYMED_TOKEN, printed by user login, and
prompt for email and password without it. run watches every user
without a token.`))
}

type app struct {
	config  config.Config
	badger  *db.Badger
	logger  *logrus.Logger
	metrics *metrics.Metrics
	prompt  *prompter
	args    []string
}

// arg returns the i-th argument after the subcommand
func (a *app) arg(i int) string {
	if i < len(a.args) {
		return a.args[i]
	}

	return ""
}

func main() {
	lenArgs := len(os.Args)
	if lenArgs <= 1 {
		help()
		errLog("must supply at least one argument")
		os.Exit(1)
	}

	err := func() error {
		if err := config.LoadDotEnv(); err != nil {
			return err
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		badgerPath, err := cfg.BadgerPath()
		if err != nil {
			return err
		}

		b, err := db.NewBadger(badgerPath)
		if err != nil {
			return err
		}

		defer b.Close()

		prompt, err := newPrompter()
		if err != nil {
			return err
		}

		defer prompt.Close()

		a := &app{
			config:  cfg,
			badger:  b,
			logger:  logger.New(cfg.LogLevel()),
			metrics: metrics.New(),
			prompt:  prompt,
			args:    os.Args[2:],
		}

		switch os.Args[1] {
		case "run":
			return a.run()

		case "user":
			return a.user()

		case "reminder":
			return a.reminder()

		case "calendar":
			return a.calendar()

		case "refill":
			return a.refill()

		case "history":
			return a.history()

		case "weight":
			return a.weight()

		case "medicine":
			return a.medicine()

		case "help":
			help()
			return nil
		}

		help()
		return fmt.Errorf("unknown command %s", os.Args[1])
	}()

	if err != nil {
		if errors.Is(err, errAborted) {
			os.Exit(130)
		}

		errLog(errorStyle.Render(err.Error()))
		os.Exit(1)
	}
}
