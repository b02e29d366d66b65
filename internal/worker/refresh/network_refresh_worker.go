package refresh

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/cyclemap/internal/worker"
)

const (
	defaultInterval = 15 * time.Minute
	// refreshTimeout - сколько ждём апстрим на одно обновление
	refreshTimeout = 30 * time.Second
)

// NetworkRefresher - кеш, который умеет перезагрузить список сетей
type NetworkRefresher interface {
	RefreshNetworks(ctx context.Context) error
}

// NetworkRefreshWorker периодически прогревает кеш списка сетей,
// чтобы API почти не ходил в апстрим на пути запроса
type NetworkRefreshWorker struct {
	*worker.BaseWorker
	refresher NetworkRefresher
	interval  time.Duration
	now       func() time.Time
}

// NewNetworkRefreshWorker создает новый NetworkRefreshWorker
func NewNetworkRefreshWorker(refresher NetworkRefresher, interval time.Duration, logger *zap.Logger) *NetworkRefreshWorker {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &NetworkRefreshWorker{
		BaseWorker: worker.NewBaseWorker("network-refresh", logger),
		refresher:  refresher,
		interval:   interval,
		now:        time.Now,
	}
}

// Start обновляет кеш сразу и затем раз в interval
func (w *NetworkRefreshWorker) Start(ctx context.Context) error {
	logger := w.Logger()
	logger.Info("Starting NetworkRefreshWorker", zap.Duration("interval", w.interval))

	w.refresh(ctx)

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
			w.refresh(ctx)
		}
	}
}

// refresh - одно обновление; ошибка не останавливает воркер
func (w *NetworkRefreshWorker) refresh(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()

	start := w.now()
	if err := w.refresher.RefreshNetworks(ctx); err != nil {
		w.Logger().Warn("Failed to refresh networks", zap.Error(err))
		return
	}
	w.Logger().Debug("Networks refreshed", zap.Duration("took", w.now().Sub(start)))
}
