package store

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseSchedule validates a 5-field cron expression.
func ParseSchedule(expr string) (cron.Schedule, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("store: schedule %q: %w", expr, err)
	}
	return sched, nil
}

// nextCronDuration returns the duration from now until the next fire time
// of expr. Returns 0 on parse error.
func nextCronDuration(expr string, now time.Time) time.Duration {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return 0
	}
	d := sched.Next(now).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// RunRetention prunes finished sessions older than keepDays every time the
// cron expression fires, until ctx is cancelled. It returns immediately when
// the expression is empty or invalid.
func (s *Store) RunRetention(ctx context.Context, expr string, keepDays int) {
	if expr == "" || keepDays <= 0 {
		return
	}
	d := nextCronDuration(expr, s.now())
	if d <= 0 {
		log.Printf("store: retention disabled: invalid schedule %q", expr)
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			n, err := s.Prune(keepDays)
			if err != nil {
				log.Printf("store: retention: %v", err)
			} else if n > 0 {
				log.Printf("store: retention: pruned %d sessions", n)
			}
			if d := nextCronDuration(expr, s.now()); d > 0 {
				timer.Reset(d)
			} else {
				return
			}
		}
	}
}
