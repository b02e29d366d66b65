package sweep

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/cyclemap/internal/worker"
)

const defaultInterval = time.Minute

// SessionSweeper - реестр сессий, который умеет закрыть просроченные
type SessionSweeper interface {
	SweepExpired() int
}

// SessionSweepWorker периодически размонтирует брошенные сессии просмотра
type SessionSweepWorker struct {
	*worker.BaseWorker
	sweeper  SessionSweeper
	interval time.Duration
}

// NewSessionSweepWorker создает новый SessionSweepWorker
func NewSessionSweepWorker(sweeper SessionSweeper, interval time.Duration, logger *zap.Logger) *SessionSweepWorker {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &SessionSweepWorker{
		BaseWorker: worker.NewBaseWorker("session-sweep", logger),
		sweeper:    sweeper,
		interval:   interval,
	}
}

// Start чистит реестр раз в interval
func (w *SessionSweepWorker) Start(ctx context.Context) error {
	logger := w.Logger()
	logger.Info("Starting SessionSweepWorker", zap.Duration("interval", w.interval))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.StopChan():
			logger.Info("Worker stopped")
			return nil

		case <-ctx.Done():
			logger.Info("Context cancelled")
			return ctx.Err()

		case <-ticker.C:
			if n := w.sweeper.SweepExpired(); n > 0 {
				logger.Info("Expired sessions unmounted", zap.Int("count", n))
			}
		}
	}
}
