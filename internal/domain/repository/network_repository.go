package repository

import (
	"context"

	"github.com/cyclemap/internal/domain"
)

// NetworkRepository определяет методы чтения данных о сетях велопроката
type NetworkRepository interface {
	// ListNetworks возвращает все сети (без станций)
	ListNetworks(ctx context.Context) ([]domain.Network, error)

	// GetNetwork возвращает сеть со станциями
	GetNetwork(ctx context.Context, id string) (*domain.NetworkDetails, error)
}
