package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/cronexpr"
)

// Rescan is a parsed cron schedule for periodic addon rescans.
type Rescan struct {
	cron string
	expr *cronexpr.Expression
}

// ParseRescan parses a cron expression. Six fields add a trailing year and
// seven also add leading seconds.
func ParseRescan(cron string) (*Rescan, error) {
	expr, err := cronexpr.Parse(cron)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}
	return &Rescan{cron: cron, expr: expr}, nil
}

func (r *Rescan) String() string {
	return r.cron
}

// Next returns the first rescan strictly after t, in UTC. It is the zero
// time when the schedule never fires again.
func (r *Rescan) Next(t time.Time) time.Time {
	next := r.expr.Next(t.UTC())
	if next.IsZero() {
		return next
	}
	return next.UTC()
}

// Run calls rescan each time the schedule fires until ctx is done. Rescans
// never overlap; a rescan that is late skips the missed times.
func (r *Rescan) Run(ctx context.Context, rescan func(ctx context.Context)) error {
	return r.run(ctx, time.Now, rescan)
}

func (r *Rescan) run(ctx context.Context, now func() time.Time, rescan func(ctx context.Context)) error {
	for {
		next := r.Next(now())
		if next.IsZero() {
			slog.WarnContext(ctx, "rescan schedule has no upcoming run times", slog.String("cron", r.cron))
			return nil
		}
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		rescan(ctx)
	}
}
