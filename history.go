package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"go.uber.org/zap"

	"batchgen/core"
	"batchgen/db"
)

func (a *app) showHistory(ctx context.Context, limit, pruneDays int) error {
	if a.cfg.HistoryDB == "" {
		return core.ErrMissingConfig("HISTORY_DB")
	}
	database, err := db.Open(a.cfg.HistoryDB)
	if err != nil {
		return err
	}
	defer database.Close()

	if pruneDays > 0 {
		res, err := database.Prune(ctx, time.Duration(pruneDays)*24*time.Hour)
		if err != nil {
			return err
		}
		a.logger.Info("pruned run history",
			zap.Int64("runs_deleted", res.RunsDeleted),
			zap.Duration("duration", res.Duration))
		fmt.Fprintf(a.stdout, "Pruned %d run(s) older than %d day(s)\n", res.RunsDeleted, pruneDays)
	}

	runs, err := db.NewRepository(database, nil).RecentRuns(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(a.stdout, "No runs recorded yet.")
		return nil
	}

	tw := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tBACKEND\tROWS\tOK\tFAILED\tSTATUS\tRETRY OF")
	for _, r := range runs {
		parent := r.ParentRunID
		if parent == "" {
			parent = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
			r.ID,
			r.CreatedAt.Local().Format("2006-01-02 15:04"),
			r.Backend,
			r.Rows,
			r.Succeeded,
			r.Failed,
			statusColor(r.Status).Sprint(r.Status),
			parent)
	}
	return tw.Flush()
}

func statusColor(status string) *color.Color {
	switch status {
	case db.RunCompleted:
		return color.New(color.FgGreen)
	case db.RunFailed:
		return color.New(color.FgRed)
	case db.RunStopped:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgCyan)
	}
}
