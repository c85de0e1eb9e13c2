package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"

	"github.com/sacrednumerology/sacred-backend/pkg/db/models"
	"github.com/sacrednumerology/sacred-backend/pkg/enums"
)

type dlqAdmin interface {
	List(ctx context.Context, reason enums.OutboxDLQErrorReason, limit int) ([]models.OutboxDLQ, error)
	Requeue(ctx context.Context, eventID uuid.UUID) error
}

// dlqCommand handles the one-shot -dlq and -requeue flags. It reports whether
// a command ran so main can exit instead of starting the relay loop.
func dlqCommand(ctx context.Context, out io.Writer, repo dlqAdmin, list bool, requeue string) (bool, error) {
	switch {
	case requeue != "":
		id, err := uuid.Parse(requeue)
		if err != nil {
			return true, fmt.Errorf("requeue: %w", err)
		}
		if err := repo.Requeue(ctx, id); err != nil {
			return true, err
		}
		fmt.Fprintf(out, "requeued %s\n", id)
		return true, nil
	case list:
		rows, err := repo.List(ctx, "", 0)
		if err != nil {
			return true, err
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "EVENT ID\tTYPE\tREASON\tATTEMPTS\tFAILED AT")
		for _, row := range rows {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", row.EventID, row.EventType, row.ErrorReason, row.AttemptCount, row.FailedAt.UTC().Format(time.RFC3339))
		}
		return true, tw.Flush()
	}
	return false, nil
}
