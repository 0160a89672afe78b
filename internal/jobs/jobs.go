package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"learncal/internal/archive"
	"learncal/internal/calendar"
	"learncal/internal/config"
	"learncal/internal/ics"
	appLog "learncal/internal/log"
	"learncal/internal/metrics"
)

// Runner owns the background work around a calendar: pulling ICS
// subscriptions and writing snapshots. Every touch of the calendar happens
// under lock, which callers share with their other users of cal.
type Runner struct {
	cal     *calendar.Calendar
	lock    sync.Locker
	fetcher *ics.Fetcher
	subs    []config.SubscriptionConfig

	snapshotPath string
	metrics      *metrics.Metrics

	cron *cron.Cron
}

type Options struct {
	Fetcher       *ics.Fetcher
	Subscriptions []config.SubscriptionConfig
	SnapshotPath  string
	Metrics       *metrics.Metrics
}

func NewRunner(cal *calendar.Calendar, lock sync.Locker, opts Options) *Runner {
	if opts.Fetcher == nil {
		opts.Fetcher = ics.NewFetcher("", nil)
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	return &Runner{
		cal:          cal,
		lock:         lock,
		fetcher:      opts.Fetcher,
		subs:         opts.Subscriptions,
		snapshotPath: opts.SnapshotPath,
		metrics:      opts.Metrics,
		cron: cron.New(cron.WithChain(
			cron.Recover(cron.DefaultLogger),
			cron.SkipIfStillRunning(cron.DefaultLogger),
		)),
	}
}

// Schedule registers the refresh and snapshot jobs. An empty spec skips
// that job.
func (r *Runner) Schedule(refreshSpec, snapshotSpec string) error {
	if refreshSpec != "" && len(r.subs) > 0 {
		if _, err := r.cron.AddFunc(refreshSpec, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			_ = r.RefreshSubscriptions(ctx)
		}); err != nil {
			return fmt.Errorf("refresh schedule %q: %w", refreshSpec, err)
		}
	}
	if snapshotSpec != "" && r.snapshotPath != "" {
		if _, err := r.cron.AddFunc(snapshotSpec, func() {
			_ = r.Snapshot()
		}); err != nil {
			return fmt.Errorf("snapshot schedule %q: %w", snapshotSpec, err)
		}
	}
	return nil
}

func (r *Runner) Start() {
	appLog.Info("jobs started", "entries", len(r.cron.Entries()))
	r.cron.Start()
}

// Stop stops scheduling and waits for running jobs until ctx is done.
func (r *Runner) Stop(ctx context.Context) {
	done := r.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		appLog.Warn("jobs stop timed out")
	}
}

// RefreshSubscriptions fetches every subscription and swaps its events into
// the store. One failing feed doesn't block the others; their errors are
// joined.
func (r *Runner) RefreshSubscriptions(ctx context.Context) error {
	r.lock.Lock()
	loc := r.cal.Location()
	r.lock.Unlock()

	var errs []error
	for _, sub := range r.subs {
		n, err := r.refreshOne(ctx, sub, loc)
		r.metrics.TrackJob("refresh", err == nil)
		if err != nil {
			appLog.Error("subscription refresh failed", err, "id", sub.ID)
			errs = append(errs, fmt.Errorf("%s: %w", sub.ID, err))
			continue
		}
		appLog.Info("subscription refreshed", "id", sub.ID, "events", n)
	}
	return errors.Join(errs...)
}

func (r *Runner) refreshOne(ctx context.Context, sub config.SubscriptionConfig, loc *time.Location) (int, error) {
	src := ics.Source{ID: sub.ID, URL: sub.URL}
	res, err := r.fetcher.Fetch(ctx, src)
	if err != nil {
		return 0, err
	}
	events, err := ics.Parse(src, res.Body, loc)
	if err != nil {
		return 0, err
	}
	for i := range events {
		events[i].ID = sub.ID + ":" + events[i].ID
	}

	r.lock.Lock()
	defer r.lock.Unlock()
	if err := r.cal.Store().ReplaceSource(sub.ID, events); err != nil {
		return 0, err
	}
	r.metrics.SetStoredEvents(r.cal.Store().Len())
	return len(events), nil
}

// Snapshot writes the calendar to the configured snapshot path.
func (r *Runner) Snapshot() error {
	if r.snapshotPath == "" {
		return nil
	}
	r.lock.Lock()
	err := archive.SaveFile(r.snapshotPath, r.cal)
	r.lock.Unlock()

	r.metrics.TrackJob("snapshot", err == nil)
	if err != nil {
		appLog.Error("snapshot failed", err, "path", r.snapshotPath)
	}
	return err
}
