// Package queue batches mutations for both stores.
//
// The Target queue accumulates sync API commands and commits them in bounded
// batches, translating temporary ids into real ones as the Target assigns
// them. The Source queue applies operations one by one through a SourceWriter,
// since the Source API has no batch endpoint.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
)

// MaxBatchSize is the most commands the Target accepts per request.
const MaxBatchSize = 100

// ErrRejected marks a mutation the remote store refused. Commits log and
// record rejected mutations and carry on with the rest.
var ErrRejected = errors.New("mutation rejected")

// Transport sends one batch of commands to the Target.
type Transport interface {
	Execute(ctx context.Context, commands []Command) (*Response, error)
}

// Queue accumulates Target commands for one pass.
//
// Thread-safety: Queue is not safe for concurrent use. The pass orchestrator
// owns it exclusively.
type Queue struct {
	transport Transport
	ids       IDGenerator
	batchSize int
	logger    *slog.Logger

	pending   []Command
	counts    map[CommandType]int
	temps     map[string]struct{}
	mapping   map[string]string
	failures  []Failure
	syncToken string
}

// Option configures a Queue.
type Option func(*Queue)

// WithIDGenerator sets the generator for uuids and temp ids.
func WithIDGenerator(g IDGenerator) Option {
	return func(q *Queue) { q.ids = g }
}

// WithBatchSize caps the commands per request. Values outside
// 1..MaxBatchSize fall back to MaxBatchSize.
func WithBatchSize(n int) Option {
	return func(q *Queue) {
		if n < 1 || n > MaxBatchSize {
			n = MaxBatchSize
		}
		q.batchSize = n
	}
}

// WithLogger sets the logger used for rejected commands.
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) { q.logger = l }
}

// New creates an empty queue committing through t.
func New(t Transport, opts ...Option) *Queue {
	q := &Queue{
		transport: t,
		ids:       UUIDGenerator{},
		batchSize: MaxBatchSize,
		logger:    slog.Default(),
		counts:    make(map[CommandType]int),
		temps:     make(map[string]struct{}),
		mapping:   make(map[string]string),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Add queues a creation command and returns its temporary id, which later
// commands may reference in place of the real id.
func (q *Queue) Add(kind CommandType, args map[string]any) string {
	temp := q.ids.Generate()
	q.temps[temp] = struct{}{}
	q.enqueue(Command{Type: kind, UUID: q.ids.Generate(), TempID: temp, Args: args})
	return temp
}

// Push queues a command that creates nothing.
func (q *Queue) Push(kind CommandType, args map[string]any) {
	q.enqueue(Command{Type: kind, UUID: q.ids.Generate(), Args: args})
}

func (q *Queue) enqueue(c Command) {
	if c.Args == nil {
		c.Args = map[string]any{}
	}
	q.pending = append(q.pending, c)
	q.counts[c.Type]++
}

// Commit sends all pending commands in order, in batches of at most the
// configured size.
//
// Temporary ids resolved by earlier batches are rewritten before a batch is
// sent. Commands the Target rejects are logged and recorded as failures; the
// remaining batches are still sent. A transport error aborts the commit and
// leaves the unsent commands dropped.
func (q *Queue) Commit(ctx context.Context) error {
	pending := q.pending
	q.pending = nil

	for start := 0; start < len(pending); start += q.batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+q.batchSize, len(pending))

		batch := make([]Command, 0, end-start)
		for _, c := range pending[start:end] {
			c.Args = rewrite(c.Args, q.mapping).(map[string]any)
			batch = append(batch, c)
		}

		resp, err := q.transport.Execute(ctx, batch)
		if err != nil {
			return fmt.Errorf("commit batch %d (%d commands): %w", start/q.batchSize+1, len(batch), err)
		}
		q.absorb(batch, resp)
	}
	return nil
}

func (q *Queue) absorb(batch []Command, resp *Response) {
	if resp == nil {
		return
	}
	maps.Copy(q.mapping, resp.TempIDMapping)
	if resp.SyncToken != "" {
		q.syncToken = resp.SyncToken
	}
	for _, c := range batch {
		st, ok := resp.SyncStatus[c.UUID]
		if !ok || st.OK {
			continue
		}
		f := Failure{Command: c, Code: st.ErrorCode, Message: st.Error}
		q.failures = append(q.failures, f)
		q.logger.Warn("target rejected command",
			"type", c.Type,
			"uuid", c.UUID,
			"code", st.ErrorCode,
			"error", st.Error,
		)
	}
}

// Resolve returns the real id for a temporary id once known, and id
// unchanged otherwise.
func (q *Queue) Resolve(id string) string {
	if real, ok := q.mapping[id]; ok {
		return real
	}
	return id
}

// IsTemporary reports whether id was issued by this queue and has not been
// resolved yet.
func (q *Queue) IsTemporary(id string) bool {
	if _, ok := q.temps[id]; !ok {
		return false
	}
	_, resolved := q.mapping[id]
	return !resolved
}

// Mapping returns a copy of every temp id resolution seen so far.
func (q *Queue) Mapping() map[string]string { return maps.Clone(q.mapping) }

// Failures returns the commands the Target rejected.
func (q *Queue) Failures() []Failure { return q.failures }

// SyncToken returns the token of the last successful batch, or "".
func (q *Queue) SyncToken() string { return q.syncToken }

// Len is the number of commands not yet committed.
func (q *Queue) Len() int { return len(q.pending) }

// Pending returns a copy of the uncommitted commands.
func (q *Queue) Pending() []Command { return append([]Command(nil), q.pending...) }

// Counts returns how many commands of each kind were queued over the
// queue's lifetime.
func (q *Queue) Counts() map[CommandType]int { return maps.Clone(q.counts) }

// AddItem queues an item_add.
func (q *Queue) AddItem(args map[string]any) string { return q.Add(ItemAdd, args) }

// UpdateItem queues an item_update of id with the given fields.
func (q *Queue) UpdateItem(id string, fields map[string]any) {
	q.Push(ItemUpdate, withID(id, fields))
}

// MoveItem queues an item_move. dest holds exactly one of project_id,
// section_id or parent_id.
func (q *Queue) MoveItem(id string, dest map[string]any) {
	q.Push(ItemMove, withID(id, dest))
}

// CloseItem queues an item_close.
func (q *Queue) CloseItem(id string) { q.Push(ItemClose, withID(id, nil)) }

// UncompleteItem queues an item_uncomplete.
func (q *Queue) UncompleteItem(id string) { q.Push(ItemUncomplete, withID(id, nil)) }

// DeleteItem queues an item_delete.
func (q *Queue) DeleteItem(id string) { q.Push(ItemDelete, withID(id, nil)) }

// AddNote queues a note_add on itemID.
func (q *Queue) AddNote(itemID, content string) string {
	return q.Add(NoteAdd, map[string]any{"item_id": itemID, "content": content})
}

// UpdateNote queues a note_update.
func (q *Queue) UpdateNote(id, content string) {
	q.Push(NoteUpdate, map[string]any{"id": id, "content": content})
}

// DeleteNote queues a note_delete.
func (q *Queue) DeleteNote(id string) { q.Push(NoteDelete, withID(id, nil)) }

// AddProject queues a project_add.
func (q *Queue) AddProject(args map[string]any) string { return q.Add(ProjectAdd, args) }

// UpdateProject queues a project_update.
func (q *Queue) UpdateProject(id string, fields map[string]any) {
	q.Push(ProjectUpdate, withID(id, fields))
}

// MoveProject queues a project_move under parentID.
func (q *Queue) MoveProject(id, parentID string) {
	q.Push(ProjectMove, map[string]any{"id": id, "parent_id": parentID})
}

// DeleteProject queues a project_delete.
func (q *Queue) DeleteProject(id string) { q.Push(ProjectDelete, withID(id, nil)) }

// ReorderProjects queues a project_reorder assigning child_order by position.
func (q *Queue) ReorderProjects(ids []string) {
	q.Push(ProjectReorder, map[string]any{"projects": orderArgs(ids, "child_order")})
}

// AddSection queues a section_add.
func (q *Queue) AddSection(args map[string]any) string { return q.Add(SectionAdd, args) }

// UpdateSection queues a section_update.
func (q *Queue) UpdateSection(id string, fields map[string]any) {
	q.Push(SectionUpdate, withID(id, fields))
}

// MoveSection queues a section_move into projectID.
func (q *Queue) MoveSection(id, projectID string) {
	q.Push(SectionMove, map[string]any{"id": id, "project_id": projectID})
}

// DeleteSection queues a section_delete.
func (q *Queue) DeleteSection(id string) { q.Push(SectionDelete, withID(id, nil)) }

// ReorderSections queues a section_reorder assigning section_order by position.
func (q *Queue) ReorderSections(ids []string) {
	q.Push(SectionReorder, map[string]any{"sections": orderArgs(ids, "section_order")})
}

// AddLabel queues a label_add.
func (q *Queue) AddLabel(args map[string]any) string { return q.Add(LabelAdd, args) }

// UpdateLabel queues a label_update.
func (q *Queue) UpdateLabel(id string, fields map[string]any) {
	q.Push(LabelUpdate, withID(id, fields))
}

func withID(id string, fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields)+1)
	maps.Copy(out, fields)
	out["id"] = id
	return out
}

func orderArgs(ids []string, key string) []map[string]any {
	out := make([]map[string]any, len(ids))
	for i, id := range ids {
		out[i] = map[string]any{"id": id, key: i + 1}
	}
	return out
}
