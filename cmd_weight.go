package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"git.0xdad.com/tblyler/mymed/db"
	"git.0xdad.com/tblyler/mymed/schedule"
	"git.0xdad.com/tblyler/mymed/weight"
	"github.com/google/uuid"
)

func (a *app) openWeightStore() (*db.WeightStore, error) {
	conn, err := db.OpenSQL(a.config.WeightDSN())
	if err != nil {
		return nil, err
	}

	if err := db.Migrate(conn); err != nil {
		conn.Close()
		return nil, err
	}

	return db.NewWeightStore(conn), nil
}

func parseKg(value string) (float64, error) {
	kg, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not a weight in kg", value)
	}

	return kg, nil
}

func (a *app) weight() error {
	if len(a.args) < 1 {
		return errors.New("must supply an argument to the weight command")
	}

	user, err := a.lookupUser()
	if err != nil {
		return err
	}

	store, err := a.openWeightStore()
	if err != nil {
		return err
	}

	defer store.Close()

	ctx := context.Background()
	tracker := weight.NewTracker(user.ID, store, a.metrics, a.logger)

	switch a.args[0] {
	case "add":
		value, err := a.prompt.withDefault("date (YYYY-MM-DD)", time.Now().Format(schedule.DateLayout))
		if err != nil {
			return err
		}

		day, err := schedule.ParseDate(value)
		if err != nil {
			return err
		}

		value, err = a.prompt.required("weight (kg)")
		if err != nil {
			return err
		}

		kg, err := parseKg(value)
		if err != nil {
			return err
		}

		entry, err := tracker.Record(ctx, day, kg)
		if err != nil {
			return err
		}

		log(successStyle.Render("recorded"), formatWeight(entry))

	case "list":
		entries, err := tracker.Entries(ctx)
		if err != nil {
			return err
		}

		if len(entries) == 0 {
			log(dimStyle.Render("no weight recorded"))
		}

		for _, entry := range entries {
			log(formatWeight(entry))
		}

	case "delete":
		value := a.arg(1)
		if value == "" {
			value, err = a.prompt.required("entry id")
			if err != nil {
				return err
			}
		}

		id, err := uuid.Parse(value)
		if err != nil {
			return fmt.Errorf("%q is not an entry id", value)
		}

		if err := tracker.Delete(ctx, id); err != nil {
			return err
		}

		log(successStyle.Render("deleted entry"), id)

	case "goal":
		value := a.arg(1)
		if value == "" {
			value, err = a.prompt.required("target weight (kg)")
			if err != nil {
				return err
			}
		}

		kg, err := parseKg(value)
		if err != nil {
			return err
		}

		goal, err := tracker.SetGoal(ctx, kg)
		if err != nil {
			return err
		}

		log(successStyle.Render(fmt.Sprintf("goal set to %.1f kg from %.1f kg", goal.TargetWeightKg, goal.StartWeightKg)))

	case "insights":
		insight, err := tracker.Insights(ctx)
		if err != nil {
			return err
		}

		goal, err := tracker.Goal(ctx)
		if err != nil {
			return err
		}

		log(formatInsight(insight, goal))

	default:
		return fmt.Errorf("unknown weight command %s", a.args[0])
	}

	return nil
}
