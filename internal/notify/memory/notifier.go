// Package memory records deltas in memory. Used by tests and dry runs.
package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/noticewatch/internal/notice"
)

// Notifier stores every delta it receives.
type Notifier struct {
	mu     sync.RWMutex
	deltas []notice.Delta
}

// New returns a memory Notifier.
func New() *Notifier {
	return &Notifier{}
}

// Notify records delta.
func (n *Notifier) Notify(_ context.Context, delta notice.Delta) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	entries := make([]notice.DeltaEntry, len(delta.Entries))
	copy(entries, delta.Entries)
	n.deltas = append(n.deltas, notice.Delta{RunID: delta.RunID, Entries: entries})
	return nil
}

// Deltas returns the recorded deltas.
func (n *Notifier) Deltas() []notice.Delta {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]notice.Delta, len(n.deltas))
	copy(out, n.deltas)
	return out
}
