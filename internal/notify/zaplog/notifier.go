// Package zaplog writes each delta entry as a structured log line.
package zaplog

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/noticewatch/internal/notice"
)

// Notifier logs deltas.
type Notifier struct {
	logger *zap.Logger
}

// New creates a Notifier writing to logger.
func New(logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{logger: logger.Named("notify")}
}

// Notify emits one line per entry followed by a count.
func (n *Notifier) Notify(_ context.Context, delta notice.Delta) error {
	for _, e := range delta.Entries {
		n.logger.Info("New notice",
			zap.String("run_id", delta.RunID),
			zap.String("source", e.Source),
			zap.String("category", e.Category),
			zap.String("title", e.Title),
			zap.String("link", e.Link),
		)
	}
	n.logger.Info("Delta delivered", zap.String("run_id", delta.RunID), zap.Int("entries", delta.Len()))
	return nil
}
