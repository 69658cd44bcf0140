package engine

import (
	"context"

	"github.com/soimon/notion-todoist/internal/queue"
	"github.com/soimon/notion-todoist/internal/snapshot"
	"github.com/soimon/notion-todoist/internal/stamp"
)

// Rehash rewrites the stamp of every stamped Target task whose recorded hash
// no longer matches its content, and returns how many stamps it rewrote.
//
// Use it after changing the hashing scheme or the name symbols, so existing
// tasks are not mistaken for Target edits on the next pass.
func (e *Engine) Rehash(ctx context.Context) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap, _, err := e.target.Fetch(ctx, FullSync)
	if err != nil {
		return 0, fetchError("target", err)
	}
	if snap == nil {
		snap = &snapshot.Snapshot{}
	}

	all := make(map[string]bool)
	for _, p := range snap.ActiveProjects() {
		all[p.ID] = true
	}
	idx := indexTargetTasks(snap, all, e.symbols)

	q := queue.New(e.target,
		queue.WithIDGenerator(e.ids),
		queue.WithBatchSize(e.batchSize),
		queue.WithLogger(e.logger),
	)
	for _, t := range idx.tasks {
		tt := t.Target
		if tt.StampNoteID == "" || tt.StampHash == tt.ContentHash {
			continue
		}
		q.UpdateNote(tt.StampNoteID, stamp.Stamp{SourceID: tt.StampSourceID, ContentHash: tt.ContentHash}.String())
	}
	n := q.Len()
	if n == 0 || e.dryRun {
		return n, nil
	}
	if err := q.Commit(ctx); err != nil {
		return 0, commitError("target", err)
	}
	e.logger.Info("rehashed stamps", "count", n, "failed", len(q.Failures()))
	return n - len(q.Failures()), nil
}
