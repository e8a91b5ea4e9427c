package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/studysync/studysync/internal/timetable"
)

// CalendarCmd prints the month's events.
type CalendarCmd struct {
	apiFlags `embed:""`

	Year  int `help:"Year (default: current)"`
	Month int `help:"Month 1-12 (default: current)"`
}

func (c *CalendarCmd) Run(ctx context.Context, globals *Globals) error {
	client, _, err := c.build(globals)
	if err != nil {
		return err
	}

	now := time.Now()
	year, month := c.Year, time.Month(c.Month)
	if year == 0 {
		year = now.Year()
	}
	if month == 0 {
		month = now.Month()
	}

	events, err := timetable.NewService(client).Month(ctx, year, month)
	if err != nil {
		return err
	}

	fmt.Printf("Calendar for %s %d:\n", month, year)
	if len(events) == 0 {
		fmt.Println("No events.")
		return nil
	}

	fmt.Printf("%-11s %-13s %-40s %-12s\n", "Date", "Time", "Title", "Batch")
	fmt.Println(strings.Repeat("─", 80))

	for _, event := range events {
		fmt.Printf("%-11s %s-%s %-40s %-12s\n",
			event.StartsAt.Format("2006-01-02"),
			event.StartsAt.Format("15:04"),
			event.EndsAt.Format("15:04"),
			truncate(event.Title, 40),
			event.BatchID)
	}

	return nil
}

// AttendanceCmd prints a batch attendance report with a summary line.
type AttendanceCmd struct {
	apiFlags `embed:""`

	Batch string `arg:"" help:"Batch id"`
	From  string `help:"Start date (YYYY-MM-DD, default: first of this month)"`
	To    string `help:"End date (YYYY-MM-DD, default: today)"`
}

func (c *AttendanceCmd) Run(ctx context.Context, globals *Globals) error {
	client, _, err := c.build(globals)
	if err != nil {
		return err
	}

	now := time.Now()
	from, to := c.From, c.To
	if from == "" {
		from = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).Format("2006-01-02")
	}
	if to == "" {
		to = now.Format("2006-01-02")
	}

	records, err := timetable.NewService(client).Attendance(ctx, c.Batch, from, to)
	if err != nil {
		return err
	}

	fmt.Printf("Attendance for batch %s (%s to %s):\n", c.Batch, from, to)
	for _, record := range records {
		fmt.Printf("  %s  %s\n", record.Date, record.Status)
	}

	sum := timetable.Summarize(records)
	fmt.Printf("\nPresent %d/%d working days (%.1f%%), %d leave\n",
		sum.Present, sum.Working, sum.Percent, sum.Leave)

	return nil
}
