// Package integrity periodically re-hashes stored originals and reports
// records whose content no longer matches the saved checksum.
package integrity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"mediaapi/internal/repository"
	"mediaapi/internal/service"
)

var (
	checkedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "media_integrity_checked_total",
		Help: "Number of media records verified by the integrity sweep.",
	})
	failuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "media_integrity_failures_total",
		Help: "Integrity sweep failures by reason (mismatch, missing, error).",
	}, []string{"reason"})
)

// ErrRunning is returned by RunOnce while another sweep is in progress.
var ErrRunning = errors.New("integrity sweep already running")

// Source is the part of the media service the sweep needs.
type Source interface {
	List(ctx context.Context, in service.ListInput) (*service.MediaListResult, error)
	Verify(ctx context.Context, id string) (*service.IntegrityReport, error)
}

// Summary describes one sweep.
type Summary struct {
	Checked    int           `json:"checked"`
	Mismatched []string      `json:"mismatched,omitempty"`
	Missing    []string      `json:"missing,omitempty"`
	Errors     int           `json:"errors"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
}

// OK reports whether every record verified cleanly.
func (s Summary) OK() bool {
	return len(s.Mismatched) == 0 && len(s.Missing) == 0 && s.Errors == 0
}

// Sweeper runs integrity sweeps on demand or on a cron schedule.
type Sweeper struct {
	src       Source
	batchSize int
	log       *zap.Logger

	mu        sync.Mutex
	running   bool
	scheduler *cron.Cron
	cancel    context.CancelFunc
}

// New builds a Sweeper that pages through records batchSize at a time.
func New(src Source, batchSize int, log *zap.Logger) *Sweeper {
	if batchSize <= 0 {
		batchSize = 100
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Sweeper{src: src, batchSize: batchSize, log: log.Named("integrity")}
}

// RunOnce verifies every record once. Per-record failures are counted in
// the summary; only a listing failure or cancellation aborts the sweep.
func (s *Sweeper) RunOnce(ctx context.Context) (sum Summary, err error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return Summary{}, ErrRunning
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	sum.StartedAt = time.Now().UTC()
	defer func() { sum.Duration = time.Since(sum.StartedAt) }()

	// Keyset paging keeps the walk stable while uploads add newer rows.
	var after *repository.Cursor
	for {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		page, err := s.src.List(ctx, service.ListInput{Limit: s.batchSize, After: after})
		if err != nil {
			return sum, fmt.Errorf("list media after %d checked: %w", sum.Checked, err)
		}
		for _, m := range page.Items {
			if err := ctx.Err(); err != nil {
				return sum, err
			}
			s.verify(ctx, m.ID, &sum)
		}
		if len(page.Items) < s.batchSize || len(page.Items) >= page.Total {
			break
		}
		after = repository.CursorOf(page.Items[len(page.Items)-1])
	}

	s.log.Info("integrity sweep finished",
		zap.Int("checked", sum.Checked),
		zap.Int("mismatched", len(sum.Mismatched)),
		zap.Int("missing", len(sum.Missing)),
		zap.Int("errors", sum.Errors),
		zap.Duration("elapsed", time.Since(sum.StartedAt)))
	return sum, nil
}

func (s *Sweeper) verify(ctx context.Context, id string, sum *Summary) {
	report, err := s.src.Verify(ctx, id)
	sum.Checked++
	checkedTotal.Inc()
	switch {
	case err != nil:
		sum.Errors++
		failuresTotal.WithLabelValues("error").Inc()
		s.log.Error("integrity check failed", zap.String("id", id), zap.Error(err))
	case report.Missing:
		sum.Missing = append(sum.Missing, id)
		failuresTotal.WithLabelValues("missing").Inc()
		s.log.Error("stored object missing", zap.String("id", id), zap.String("storage_path", report.StoragePath))
	case !report.OK:
		sum.Mismatched = append(sum.Mismatched, id)
		failuresTotal.WithLabelValues("mismatch").Inc()
		s.log.Error("checksum mismatch",
			zap.String("id", id),
			zap.String("expected", report.Expected),
			zap.String("actual", report.Actual))
	}
}

// Start schedules RunOnce with a standard five field cron spec or a
// descriptor such as "@daily" or "@every 6h".
func (s *Sweeper) Start(schedule string) error {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scheduler != nil {
		return errors.New("integrity scheduler already started")
	}

	// Scheduled sweeps run under ctx so Stop can cut a long sweep short.
	ctx, cancel := context.WithCancel(context.Background())
	logger := cronLogger{log: s.log}
	c := cron.New(cron.WithLogger(logger), cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)))
	if _, err := c.AddFunc(schedule, func() {
		if _, err := s.RunOnce(ctx); err != nil {
			s.log.Error("integrity sweep aborted", zap.Error(err))
		}
	}); err != nil {
		cancel()
		return fmt.Errorf("failed to add integrity job to scheduler: %w", err)
	}
	c.Start()
	s.scheduler = c
	s.cancel = cancel
	s.log.Info("integrity scheduler started", zap.String("schedule", schedule))
	return nil
}

// Stop halts the scheduler, cancels a running scheduled sweep and waits for
// it to return or for ctx, whichever ends first.
func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	c, cancel := s.scheduler, s.cancel
	s.scheduler, s.cancel = nil, nil
	s.mu.Unlock()
	if c == nil {
		return nil
	}
	cancel()
	select {
	case <-c.Stop().Done():
		s.log.Info("integrity scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	log *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
