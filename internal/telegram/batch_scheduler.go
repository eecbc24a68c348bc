package telegram

import (
	"context"
	"time"

	"blog_bot/internal/logger"
	"blog_bot/internal/telegram/service"
)

const defaultBatchInterval = 30 * time.Second

type batchScheduler struct {
	processor service.BatchProcessor
	interval  time.Duration
	cancel    context.CancelFunc
	done      chan struct{}
}

func newBatchScheduler(processor service.BatchProcessor, interval time.Duration) *batchScheduler {
	if interval <= 0 {
		interval = defaultBatchInterval
	}
	return &batchScheduler{
		processor: processor,
		interval:  interval,
	}
}

func (s *batchScheduler) start() {
	if s == nil {
		return
	}
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(ctx)
	logger.L().Infof("Batch scheduler started with interval %s", s.interval)
}

func (s *batchScheduler) stop() {
	if s == nil {
		return
	}
	if s.cancel == nil {
		return
	}

	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil
	logger.L().Info("Batch scheduler stopped")
}

func (s *batchScheduler) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.dispatch(ctx)
		}
	}
}

func (s *batchScheduler) dispatch(parent context.Context) {
	if parent.Err() != nil {
		return
	}

	runCtx, cancel := context.WithTimeout(parent, 2*time.Minute)
	defer cancel()

	s.processor.ProcessTick(runCtx)
}
