package novelty

import (
	"fmt"
	"sync"

	"github.com/JakeFAU/noticewatch/internal/history"
	"github.com/JakeFAU/noticewatch/internal/notice"
)

// Result is the accepted subset of one batch.
type Result struct {
	Accepted []notice.Record
	// New counts identities absent from history; Changed counts revised known ones.
	New     int
	Changed int
}

// Empty reports whether nothing was accepted.
func (r Result) Empty() bool {
	return len(r.Accepted) == 0
}

// Engine is the only writer of the history store during a run.
type Engine struct {
	mu    sync.Mutex
	store *history.Store
}

// NewEngine binds an engine to the run's store.
func NewEngine(store *history.Store) *Engine {
	return &Engine{store: store}
}

// Apply filters batch under policy and writes accepted records back to the store
// before returning. The first occurrence of an identity within a batch wins.
// An empty Result with a nil error means "no updates".
func (e *Engine) Apply(policy Policy, batch []notice.Record) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var judge func(notice.Record) (accepted, changed bool)
	switch policy {
	case PolicyIdentity:
		judge = e.identityJudge
	case PolicyChange:
		judge = e.changeJudge
	default:
		return Result{}, fmt.Errorf("apply %s: %w", policy, ErrUnknownPolicy)
	}

	var res Result
	seen := make(map[string]struct{}, len(batch))
	for _, rec := range batch {
		if rec.Identity == "" {
			continue
		}
		if _, dup := seen[rec.Identity]; dup {
			continue
		}
		seen[rec.Identity] = struct{}{}

		accepted, changed := judge(rec)
		if !accepted {
			continue
		}
		if changed {
			res.Changed++
		} else {
			res.New++
		}
		res.Accepted = append(res.Accepted, rec)
	}

	for _, rec := range res.Accepted {
		e.store.Put(rec)
	}
	return res, nil
}

func (e *Engine) identityJudge(rec notice.Record) (bool, bool) {
	return !e.store.Has(rec.Identity), false
}

// changeJudge compares title and description only; publish-date edits are not a change.
func (e *Engine) changeJudge(rec notice.Record) (bool, bool) {
	stored, ok := e.store.Get(rec.Identity)
	if !ok {
		return true, false
	}
	if stored.Title != rec.Title || stored.Description != rec.Description {
		return true, true
	}
	return false, false
}
