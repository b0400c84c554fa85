package history

import (
	"context"

	"go.uber.org/zap"
)

// ReadOnly wraps a Backend and discards saves. Used for dry runs.
type ReadOnly struct {
	Backend
	logger *zap.Logger
}

// NewReadOnly wraps backend.
func NewReadOnly(backend Backend, logger *zap.Logger) *ReadOnly {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReadOnly{Backend: backend, logger: logger}
}

// Save logs the would-be save and returns nil.
func (r *ReadOnly) Save(_ context.Context, store *Store) error {
	r.logger.Info("Dry run; history not persisted", zap.Int("records", store.Len()))
	return nil
}
