package worker

import (
	"context"
)

// Worker - фоновая задача процесса. Start блокируется до Stop или отмены ctx.
type Worker interface {
	Start(ctx context.Context) error
	Stop() error
	Name() string
}
