package main

import (
	"fmt"
	"strings"
	"time"

	"git.0xdad.com/tblyler/mymed/db"
	"git.0xdad.com/tblyler/mymed/schedule"
	"git.0xdad.com/tblyler/mymed/weight"
	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("81")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("114"))

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("222")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("203")).
			Bold(true)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 1)
)

func formatReminder(r db.Reminder) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s  %s %s  %s",
		headerStyle.Render(r.TimeOfDay.String()),
		r.MedicineName,
		r.Dosage,
		dimStyle.Render(r.Schedule.String()),
	)

	if last, ok := r.Schedule.LastDay(); ok {
		b.WriteString(dimStyle.Render(" until " + last.Format(schedule.DateLayout)))
	}

	if r.IsActive {
		b.WriteString(" " + warningStyle.Render("awaiting response"))
	}

	if r.RefillTracking {
		b.WriteString(" " + formatSupply(r))
	}

	b.WriteString("\n    " + dimStyle.Render(r.ID.String()))

	return b.String()
}

func formatSupply(r db.Reminder) string {
	supply := fmt.Sprintf("supply %d (alert at %d)", r.CurrentSupply, r.AlertAt)
	if r.LowSupply() {
		return warningStyle.Render(supply + " refill soon")
	}

	return successStyle.Render(supply)
}

func formatHistory(h db.HistoryEntry) string {
	status := string(h.Status)
	switch h.Status {
	case db.StatusTaken:
		status = successStyle.Render(status)
	case db.StatusSnoozed:
		status = warningStyle.Render(status)
	case db.StatusMissed:
		status = errorStyle.Render(status)
	}

	return fmt.Sprintf("%s  %-8s %s %s", dimStyle.Render(h.Timestamp.Format("2006-01-02 15:04")), status, h.MedicineName, h.Dosage)
}

func formatMonth(year int, month time.Month, due map[int][]db.Reminder) string {
	var b strings.Builder

	first := time.Date(year, month, 1, 0, 0, 0, 0, time.Local)
	b.WriteString(headerStyle.Render(first.Format("January 2006")) + "\n")
	b.WriteString("Mo Tu We Th Fr Sa Su\n")

	// monday first
	offset := (int(first.Weekday()) + 6) % 7
	b.WriteString(strings.Repeat("   ", offset))

	for day := first; day.Month() == month; day = day.AddDate(0, 0, 1) {
		cell := fmt.Sprintf("%2d", day.Day())
		if len(due[day.Day()]) > 0 {
			cell = successStyle.Render(cell)
		} else {
			cell = dimStyle.Render(cell)
		}

		b.WriteString(cell)

		if day.Weekday() == time.Sunday {
			b.WriteString("\n")
		} else {
			b.WriteString(" ")
		}
	}

	return strings.TrimRight(b.String(), " \n")
}

func formatWeight(e db.WeightEntry) string {
	return fmt.Sprintf("%s  %6.1f kg  %s", e.WeekStartDate.Format(schedule.DateLayout), e.WeightKg, dimStyle.Render(e.ID.String()))
}

func formatInsight(i weight.Insight, goal *db.WeightGoal) string {
	lines := []string{
		fmt.Sprintf("total change    %+.1f kg", i.TotalChange),
		fmt.Sprintf("weekly average  %+.2f kg", i.AverageWeeklyChange),
	}

	if i.BestWeek != nil {
		lines = append(lines, fmt.Sprintf("best week       %s (%+.1f kg)", i.BestWeek.WeekStartDate.Format(schedule.DateLayout), i.BestWeek.Change))
	}

	if goal != nil {
		lines = append(lines, fmt.Sprintf("goal            %.1f kg from %.1f kg on %s", goal.TargetWeightKg, goal.StartWeightKg, goal.StartDate.Format(schedule.DateLayout)))
	}

	status := string(i.Status)
	switch i.Status {
	case weight.OnTrack:
		status = successStyle.Render(status)
	case weight.Gaining, weight.Slowing:
		status = warningStyle.Render(status)
	}
	lines = append(lines, "status          "+status)

	if i.WeeksToGoal != nil {
		lines = append(lines, fmt.Sprintf("weeks to goal   %d", *i.WeeksToGoal))
	}

	return boxStyle.Render(strings.Join(lines, "\n"))
}
