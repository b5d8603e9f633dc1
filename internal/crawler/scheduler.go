package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"deltashare/internal/domain"
)

// Scheduler runs the crawler at a fixed interval after an initial delay.
type Scheduler struct {
	crawler      *Crawler
	interval     time.Duration
	initialDelay time.Duration
	logger       *slog.Logger

	mu    sync.Mutex
	timer *time.Timer
	cron  *cron.Cron
}

func NewScheduler(c *Crawler, interval, initialDelay time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Scheduler{
		crawler:      c,
		interval:     interval,
		initialDelay: initialDelay,
		logger:       logger.With("component", "crawler.scheduler"),
	}
}

// Start arms the initial-delay timer; the first run fires after the delay
// and subsequent runs fire at the configured interval.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil || s.cron != nil {
		return
	}

	s.logger.Info("scheduling crawler", "interval", s.interval, "initial_delay", s.initialDelay)
	s.timer = time.AfterFunc(s.initialDelay, func() {
		s.runOnce()

		s.mu.Lock()
		defer s.mu.Unlock()
		c := cron.New()
		if _, err := c.AddFunc(fmt.Sprintf("@every %s", s.interval), s.runOnce); err != nil {
			s.logger.Error("scheduling recurring crawl failed", "error", err)
			return
		}
		c.Start()
		s.cron = c
	})
}

// Stop cancels pending and recurring runs. An in-flight run is not
// interrupted.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.cron != nil {
		s.cron.Stop()
		s.cron = nil
	}
}

func (s *Scheduler) runOnce() {
	if _, err := s.crawler.Run(context.Background(), false); err != nil {
		var conflict *domain.ConflictError
		if errors.As(err, &conflict) {
			s.logger.Debug("skipping scheduled crawl, previous run still active")
			return
		}
		s.logger.Error("scheduled crawl failed", "error", err)
	}
}
