package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"git.0xdad.com/tblyler/mymed/auth"
	"git.0xdad.com/tblyler/mymed/config"
	"git.0xdad.com/tblyler/mymed/db"
	"git.0xdad.com/tblyler/mymed/notify"
	"git.0xdad.com/tblyler/mymed/reminder"
	"git.0xdad.com/tblyler/mymed/trigger"
	"git.0xdad.com/tblyler/mymed/weight"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// optionalToken treats an unset token as a disabled channel
func optionalToken(token string, err error) (string, error) {
	if errors.Is(err, config.ErrEnvVariableNotSet) {
		return "", nil
	}

	return token, err
}

func (a *app) run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pushoverToken, err := optionalToken(a.config.PushoverAPIToken())
	if err != nil {
		return err
	}

	telegramToken, err := optionalToken(a.config.TelegramToken())
	if err != nil {
		return err
	}

	// keep log lines and the bell from garbling the console prompt
	a.logger.SetOutput(a.prompt.rl.Stderr())
	a.prompt.rl.SetPrompt("mymed> ")

	fallback := notify.NewConsole(a.logger)
	bell := notify.NewBell(a.prompt.rl.Stdout())

	var bot *notify.TelegramBot
	if telegramToken != "" {
		bot, err = notify.NewTelegramBot(telegramToken, a.logger)
		if err != nil {
			return err
		}

		go func() {
			if err := bot.Run(ctx); err != nil {
				a.logger.WithError(err).Error("Telegram bot stopped")
			}
		}()
	}

	sched := trigger.New(trigger.Config{
		Interval:       a.config.TriggerInterval(),
		SnoozeMinutes:  a.config.SnoozeMinutes(),
		GateOnSchedule: a.config.GateOnSchedule(),
	}, bell, a.logger, trigger.WithMetrics(a.metrics), trigger.WithFallback(fallback))

	weights, err := a.openWeightStore()
	if err != nil {
		return err
	}

	defer weights.Close()

	if err := a.followWeights(ctx, sched, weights); err != nil {
		return err
	}

	w := &watcher{
		app:     a,
		sched:   sched,
		weights: weights,
		bell:    bell,
		notifierFor: func(user *db.User) notify.Notifier {
			return a.notifierFor(user, pushoverToken, bot, fallback)
		},
		cancels: make(map[uuid.UUID]func()),
	}

	defer w.unwatchAll()

	var logout func()
	if token := a.config.SessionToken(); token != "" {
		provider, err := a.auth()
		if err != nil {
			return err
		}

		session, err := provider.Resume(token)
		if err != nil {
			return fmt.Errorf("failed to resume session, run mymed user login again: %w", err)
		}

		if err := w.watch(ctx, &session.User); err != nil {
			return err
		}

		defer w.follow(ctx, provider)()

		logout = func() {
			if user := provider.Current(); user != nil {
				a.logger.Infof("Signing out %s", user.Name)
			}

			provider.Logout()
		}

		a.logger.Infof("Watching reminders of %s", session.User.Name)
	} else {
		users, err := a.badger.ListUsers()
		if err != nil {
			return err
		}

		for _, user := range users {
			if err := w.watch(ctx, user); err != nil {
				return err
			}
		}

		a.logger.Infof("Watching reminders of %d users", len(users))
	}

	if err := sched.Start(); err != nil {
		return err
	}

	defer sched.Stop()

	if bot != nil {
		go sched.Consume(ctx, bot.Actions())
	}

	typed := newConsole(a.prompt.rl, logout)
	go sched.Consume(ctx, typed.Actions())
	go func() {
		if err := typed.Run(ctx); err != nil {
			if !errors.Is(err, errAborted) {
				a.logger.WithError(err).Error("Console stopped")
			}

			stop()
		}
	}()

	if addr := a.config.MetricsAddr(); addr != "" {
		go func() {
			if err := a.metrics.Serve(ctx, addr, a.logger); err != nil {
				a.logger.WithError(err).Error("Metrics listener stopped")
			}
		}()
	}

	<-ctx.Done()

	a.logger.Info("Shutting down")

	return nil
}

// followWeights announces weight changes written by other processes, over
// LISTEN on postgres and by polling sqlite on the scan cron
func (a *app) followWeights(ctx context.Context, sched *trigger.Scheduler, weights *db.WeightStore) error {
	if weights.Driver() == db.DriverPostgres {
		go func() {
			if err := weights.Listen(ctx, a.config.WeightDSN()); err != nil {
				a.logger.WithError(err).Error("Stopped listening for weight changes")
			}
		}()

		return nil
	}

	if err := weights.Poll(ctx); err != nil {
		return err
	}

	return sched.Every(ctx, a.config.TriggerInterval(), func(ctx context.Context) {
		if err := weights.Poll(ctx); err != nil {
			a.logger.WithError(err).Warn("Failed to poll weight changes")
		}
	})
}

// watcher keeps the reminders and weight insights of users on the scan
type watcher struct {
	app         *app
	sched       *trigger.Scheduler
	weights     weight.Repository
	bell        notify.Alerter
	notifierFor func(*db.User) notify.Notifier

	mu      sync.Mutex
	cancels map[uuid.UUID]func()
}

// watch a user, a no-op when already watched
func (w *watcher) watch(ctx context.Context, user *db.User) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.cancels[user.ID]; ok {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	userNotifier := w.notifierFor(user)

	// the scan delivers due reminders, the waker only makes it run on time
	waker := w.sched.Waker(ctx)

	store := reminder.New(user.ID, w.app.badger,
		reminder.WithNotifier(waker),
		reminder.WithAlerter(w.bell),
		reminder.WithWarner(notify.NewSupplyWarner(userNotifier, w.app.logger)),
		reminder.WithMetrics(w.app.metrics),
		reminder.WithLogger(w.app.logger),
	)

	if err := store.Load(); err != nil {
		cancel()
		return err
	}

	store.ScheduleUpcoming(ctx)
	w.sched.Watch(store, userNotifier)

	tracker := weight.NewTracker(user.ID, w.weights, w.app.metrics, w.app.logger)
	go tracker.Watch(ctx, w.app.logInsight(user))

	w.cancels[user.ID] = func() {
		cancel()
		waker.CancelAll(context.Background())
	}

	return nil
}

// follow watches whoever signs in to provider and drops them on logout
func (w *watcher) follow(ctx context.Context, provider auth.Provider) (unsubscribe func()) {
	return provider.Subscribe(func(user *db.User) {
		if user == nil {
			w.unwatchAll()
			w.app.logger.Info("Signed out, no reminders are watched")
			return
		}

		if err := w.watch(ctx, user); err != nil {
			w.app.logger.WithError(err).WithField("user", user.Name).Error("Failed to watch reminders")
		}
	})
}

func (w *watcher) unwatchAll() {
	w.mu.Lock()
	cancels := w.cancels
	w.cancels = make(map[uuid.UUID]func())
	w.mu.Unlock()

	for userID, cancel := range cancels {
		w.sched.Unwatch(userID)
		cancel()
	}
}

// notifierFor fans a reminder out to every channel the user configured and
// falls back to the console when none accepts it
func (a *app) notifierFor(user *db.User, pushoverToken string, bot *notify.TelegramBot, console notify.Notifier) notify.Notifier {
	var fanout notify.Fanout

	if pushoverToken != "" && len(user.PushoverDeviceTokens) > 0 {
		fanout = append(fanout, notify.NewPushover(pushoverToken, user.PushoverDeviceTokens, a.logger))
	}

	if bot != nil && user.TelegramChatID != 0 {
		fanout = append(fanout, bot.For(user.TelegramChatID))
	}

	return notify.WithFallback(fanout, console)
}

func (a *app) logInsight(user *db.User) func(weight.Insight, error) {
	l := a.logger.WithField("user", user.Name)

	return func(insight weight.Insight, err error) {
		if err != nil {
			l.WithError(err).Warn("Failed to compute weight insights")
			return
		}

		l.WithFields(logrus.Fields{
			"status":         insight.Status,
			"total_change":   insight.TotalChange,
			"average_change": insight.AverageWeeklyChange,
		}).Info("Weight insights")
	}
}
