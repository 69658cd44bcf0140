package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/soimon/notion-todoist/internal/queue"
	"github.com/soimon/notion-todoist/internal/snapshot"
)

// Error codes returned in the sync status of rejected commands.
const (
	CodeNotFound    = 22
	CodeInvalidArgs = 19
	CodeRejected    = 400
)

// FakeTarget is an in-memory Target store speaking the sync command
// protocol. It satisfies the engine's TargetStore.
//
// Every batch and every user edit advances a sequence; tokens are "tok-<seq>"
// and an incremental Fetch returns the records touched after that seq,
// deleted and completed ones included. A full Fetch returns only live
// records, like the real API.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FakeTarget struct {
	mu      sync.Mutex
	now     func() time.Time
	seq     int
	next    int
	snap    snapshot.Snapshot
	touched map[string]int
	batches [][]queue.Command
	fetches []string
	reject  map[queue.CommandType]bool

	// ExecuteErr, when set, fails every Execute call.
	ExecuteErr error
	// FetchErr, when set, fails every Fetch call.
	FetchErr error
}

// NewFakeTarget creates an empty Target store. now stamps record times; nil
// uses time.Now.
func NewFakeTarget(now func() time.Time) *FakeTarget {
	if now == nil {
		now = time.Now
	}
	return &FakeTarget{
		now:     now,
		touched: make(map[string]int),
		reject:  make(map[queue.CommandType]bool),
	}
}

// RejectCommands makes every command of the given kinds fail in its sync
// status while the rest of the batch succeeds.
func (f *FakeTarget) RejectCommands(kinds ...queue.CommandType) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range kinds {
		f.reject[k] = true
	}
}

// Batches returns the command batches received, in order.
func (f *FakeTarget) Batches() [][]queue.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]queue.Command, len(f.batches))
	copy(out, f.batches)
	return out
}

// Commands returns every command received, flattened.
func (f *FakeTarget) Commands() []queue.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []queue.Command
	for _, b := range f.batches {
		out = append(out, b...)
	}
	return out
}

// State returns a copy of every record, deleted ones included.
func (f *FakeTarget) State() *snapshot.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.copyOf(func(string) bool { return true })
}

// Item returns a copy of the item with id.
func (f *FakeTarget) Item(id string) (snapshot.Item, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if it := f.item(id); it != nil {
		return cloneItem(*it), true
	}
	return snapshot.Item{}, false
}

// ItemByContent returns the first live item whose content is content.
func (f *FakeTarget) ItemByContent(content string) (snapshot.Item, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, it := range f.snap.Items {
		if !it.IsDeleted && it.Content == content {
			return cloneItem(it), true
		}
	}
	return snapshot.Item{}, false
}

// Notes returns the live notes of an item.
func (f *FakeTarget) Notes(itemID string) []snapshot.Note {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []snapshot.Note
	for _, n := range f.snap.Notes {
		if n.ItemID == itemID && !n.IsDeleted {
			out = append(out, n)
		}
	}
	return out
}

// SeedProject stores a project as a user action and returns its id. An empty
// ID is minted.
func (f *FakeTarget) SeedProject(p snapshot.Project) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	if p.ID == "" {
		p.ID = f.mint()
	}
	p.AddedAt = f.stamp()
	f.snap.Projects = append(f.snap.Projects, p)
	f.touch("project", p.ID)
	return p.ID
}

// SeedSection stores a section as a user action and returns its id.
func (f *FakeTarget) SeedSection(s snapshot.Section) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	if s.ID == "" {
		s.ID = f.mint()
	}
	s.AddedAt = f.stamp()
	f.snap.Sections = append(f.snap.Sections, s)
	f.touch("section", s.ID)
	return s.ID
}

// SeedItem stores an item as a user action and returns its id.
func (f *FakeTarget) SeedItem(it snapshot.Item) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	if it.ID == "" {
		it.ID = f.mint()
	}
	if it.Labels == nil {
		it.Labels = []string{}
	}
	it.AddedAt = f.stamp()
	f.snap.Items = append(f.snap.Items, it)
	f.touch("item", it.ID)
	return it.ID
}

// SeedNote stores a note as a user action and returns its id.
func (f *FakeTarget) SeedNote(itemID, content string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	n := snapshot.Note{ID: f.mint(), ItemID: itemID, Content: content, PostedAt: f.stamp()}
	f.snap.Notes = append(f.snap.Notes, n)
	f.touch("note", n.ID)
	return n.ID
}

// SeedLabel stores a label as a user action.
func (f *FakeTarget) SeedLabel(name string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	l := snapshot.Label{ID: f.mint(), Name: name}
	f.snap.Labels = append(f.snap.Labels, l)
	f.touch("label", l.ID)
	return l.ID
}

// EditItem applies fn to a stored item as a user edit.
func (f *FakeTarget) EditItem(id string, fn func(*snapshot.Item)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	it := f.item(id)
	if it == nil {
		panic(fmt.Sprintf("FakeTarget: no item %q", id))
	}
	f.seq++
	fn(it)
	it.UpdatedAt = f.stamp()
	f.touch("item", id)
}

// CompleteItem checks an item as a user action.
func (f *FakeTarget) CompleteItem(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	it := f.item(id)
	if it == nil {
		panic(fmt.Sprintf("FakeTarget: no item %q", id))
	}
	f.seq++
	it.Checked = true
	it.CompletedAt = f.stamp()
	f.touch("item", id)
}

// DeleteItem deletes an item as a user action.
func (f *FakeTarget) DeleteItem(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	f.deleteItem(id)
}

// Fetches lists the tokens Fetch was called with, in call order.
func (f *FakeTarget) Fetches() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.fetches...)
}

// Fetch returns the live state for the "*" token, or the records touched
// after token.
func (f *FakeTarget) Fetch(ctx context.Context, token string) (*snapshot.Snapshot, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches = append(f.fetches, token)
	if f.FetchErr != nil {
		return nil, "", f.FetchErr
	}

	next := "tok-" + strconv.Itoa(f.seq)
	if token == "*" || token == "" {
		return f.copyOf(func(string) bool { return true }, live), next, nil
	}
	since, err := strconv.Atoi(strings.TrimPrefix(token, "tok-"))
	if err != nil {
		return nil, "", fmt.Errorf("invalid sync token %q", token)
	}
	return f.copyOf(func(key string) bool { return f.touched[key] > since }), next, nil
}

// Execute applies a batch of commands in order.
//
// Commands travel through JSON first, so handlers see the same argument
// shapes the real API decodes. Temp ids are resolved within the batch.
func (f *FakeTarget) Execute(ctx context.Context, commands []queue.Command) (*queue.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ExecuteErr != nil {
		return nil, f.ExecuteErr
	}

	data, err := json.Marshal(commands)
	if err != nil {
		return nil, err
	}
	var wire []queue.Command
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, err
	}
	f.batches = append(f.batches, wire)
	f.seq++

	resp := &queue.Response{
		SyncStatus:    make(map[string]queue.Status, len(wire)),
		TempIDMapping: make(map[string]string),
	}
	for _, c := range wire {
		args := resolveArgs(c.Args, resp.TempIDMapping)
		if f.reject[c.Type] {
			resp.SyncStatus[c.UUID] = queue.Status{ErrorCode: CodeRejected, Error: "Rejected"}
			continue
		}
		id, st := f.apply(c.Type, args)
		resp.SyncStatus[c.UUID] = st
		if st.OK && c.TempID != "" && id != "" {
			resp.TempIDMapping[c.TempID] = id
		}
	}
	resp.SyncToken = "tok-" + strconv.Itoa(f.seq)
	return resp, nil
}

var statusOK = queue.Status{OK: true}

func notFound(kind string) queue.Status {
	return queue.Status{ErrorCode: CodeNotFound, Error: kind + " not found"}
}

func (f *FakeTarget) apply(kind queue.CommandType, args map[string]any) (string, queue.Status) {
	id := str(args, "id")
	switch kind {
	case queue.ItemAdd:
		return f.addItem(args)
	case queue.ItemUpdate:
		it := f.item(id)
		if it == nil {
			return "", notFound("Item")
		}
		applyItemFields(it, args)
		it.UpdatedAt = f.stamp()
		f.touch("item", id)
	case queue.ItemMove:
		it := f.item(id)
		if it == nil {
			return "", notFound("Item")
		}
		if st := f.moveItem(it, args); !st.OK {
			return "", st
		}
	case queue.ItemClose:
		it := f.item(id)
		if it == nil {
			return "", notFound("Item")
		}
		it.Checked = true
		it.CompletedAt = f.stamp()
		f.touch("item", id)
	case queue.ItemUncomplete:
		it := f.item(id)
		if it == nil {
			return "", notFound("Item")
		}
		it.Checked = false
		it.CompletedAt = nil
		it.UpdatedAt = f.stamp()
		f.touch("item", id)
	case queue.ItemDelete:
		if f.item(id) == nil {
			return "", notFound("Item")
		}
		f.deleteItem(id)

	case queue.NoteAdd:
		itemID := str(args, "item_id")
		if f.item(itemID) == nil {
			return "", notFound("Item")
		}
		n := snapshot.Note{ID: f.mint(), ItemID: itemID, Content: str(args, "content"), PostedAt: f.stamp()}
		f.snap.Notes = append(f.snap.Notes, n)
		f.touch("note", n.ID)
		return n.ID, statusOK
	case queue.NoteUpdate:
		n := f.note(id)
		if n == nil {
			return "", notFound("Note")
		}
		n.Content = str(args, "content")
		n.PostedAt = f.stamp()
		f.touch("note", id)
	case queue.NoteDelete:
		n := f.note(id)
		if n == nil {
			return "", notFound("Note")
		}
		n.IsDeleted = true
		f.touch("note", id)

	case queue.ProjectAdd:
		p := snapshot.Project{
			ID:       f.mint(),
			Name:     str(args, "name"),
			ParentID: str(args, "parent_id"),
			Color:    str(args, "color"),
			AddedAt:  f.stamp(),
		}
		for _, other := range f.snap.Projects {
			if other.ParentID == p.ParentID && !other.IsDeleted {
				p.ChildOrder++
			}
		}
		f.snap.Projects = append(f.snap.Projects, p)
		f.touch("project", p.ID)
		return p.ID, statusOK
	case queue.ProjectUpdate:
		p := f.project(id)
		if p == nil {
			return "", notFound("Project")
		}
		if v, set := args["name"]; set {
			p.Name, _ = v.(string)
		}
		if v, set := args["color"]; set {
			p.Color, _ = v.(string)
		}
		p.UpdatedAt = f.stamp()
		f.touch("project", id)
	case queue.ProjectMove:
		p := f.project(id)
		if p == nil {
			return "", notFound("Project")
		}
		p.ParentID = str(args, "parent_id")
		p.UpdatedAt = f.stamp()
		f.touch("project", id)
	case queue.ProjectDelete:
		p := f.project(id)
		if p == nil {
			return "", notFound("Project")
		}
		p.IsDeleted = true
		p.UpdatedAt = f.stamp()
		f.touch("project", id)
		f.deleteContents(id)
	case queue.ProjectReorder:
		for _, o := range orders(args, "projects") {
			if p := f.project(str(o, "id")); p != nil {
				p.ChildOrder = num(o, "child_order")
				f.touch("project", p.ID)
			}
		}

	case queue.SectionAdd:
		projectID := str(args, "project_id")
		if f.project(projectID) == nil {
			return "", notFound("Project")
		}
		s := snapshot.Section{ID: f.mint(), ProjectID: projectID, Name: str(args, "name"), AddedAt: f.stamp()}
		for _, other := range f.snap.Sections {
			if other.ProjectID == projectID && !other.IsDeleted {
				s.SectionOrder++
			}
		}
		f.snap.Sections = append(f.snap.Sections, s)
		f.touch("section", s.ID)
		return s.ID, statusOK
	case queue.SectionUpdate:
		s := f.section(id)
		if s == nil {
			return "", notFound("Section")
		}
		if v, set := args["name"]; set {
			s.Name, _ = v.(string)
		}
		s.UpdatedAt = f.stamp()
		f.touch("section", id)
	case queue.SectionMove:
		s := f.section(id)
		if s == nil {
			return "", notFound("Section")
		}
		s.ProjectID = str(args, "project_id")
		s.UpdatedAt = f.stamp()
		f.touch("section", id)
	case queue.SectionDelete:
		s := f.section(id)
		if s == nil {
			return "", notFound("Section")
		}
		s.IsDeleted = true
		s.UpdatedAt = f.stamp()
		f.touch("section", id)
		for _, it := range f.snap.Items {
			if it.SectionID == id && !it.IsDeleted {
				f.deleteItem(it.ID)
			}
		}
	case queue.SectionReorder:
		for _, o := range orders(args, "sections") {
			if s := f.section(str(o, "id")); s != nil {
				s.SectionOrder = num(o, "section_order")
				f.touch("section", s.ID)
			}
		}

	case queue.LabelAdd:
		name := str(args, "name")
		if name == "" {
			return "", queue.Status{ErrorCode: CodeInvalidArgs, Error: "Invalid argument value"}
		}
		l := snapshot.Label{ID: f.mint(), Name: name, Color: str(args, "color"), ItemOrder: len(f.snap.Labels)}
		if _, set := args["item_order"]; set {
			l.ItemOrder = num(args, "item_order")
		}
		f.snap.Labels = append(f.snap.Labels, l)
		f.touch("label", l.ID)
		return l.ID, statusOK
	case queue.LabelUpdate:
		for i := range f.snap.Labels {
			l := &f.snap.Labels[i]
			if l.ID != id {
				continue
			}
			if v, set := args["name"]; set {
				l.Name, _ = v.(string)
			}
			if v, set := args["color"]; set {
				l.Color, _ = v.(string)
			}
			if _, set := args["item_order"]; set {
				l.ItemOrder = num(args, "item_order")
			}
			f.touch("label", id)
			return "", statusOK
		}
		return "", notFound("Label")

	default:
		return "", queue.Status{ErrorCode: CodeInvalidArgs, Error: "Unknown command " + string(kind)}
	}
	return "", statusOK
}

func (f *FakeTarget) addItem(args map[string]any) (string, queue.Status) {
	it := snapshot.Item{
		ID:          f.mint(),
		Content:     str(args, "content"),
		Description: str(args, "description"),
		ProjectID:   str(args, "project_id"),
		SectionID:   str(args, "section_id"),
		ParentID:    str(args, "parent_id"),
		Labels:      []string{},
		AddedAt:     f.stamp(),
	}
	switch {
	case it.ParentID != "":
		parent := f.item(it.ParentID)
		if parent == nil {
			return "", notFound("Parent item")
		}
		it.ProjectID, it.SectionID = parent.ProjectID, parent.SectionID
	case it.SectionID != "":
		s := f.section(it.SectionID)
		if s == nil {
			return "", notFound("Section")
		}
		it.ProjectID = s.ProjectID
	case it.ProjectID == "" || f.project(it.ProjectID) == nil:
		return "", notFound("Project")
	}
	applyItemFields(&it, args)
	f.snap.Items = append(f.snap.Items, it)
	f.touch("item", it.ID)
	return it.ID, statusOK
}

func (f *FakeTarget) moveItem(it *snapshot.Item, args map[string]any) queue.Status {
	switch {
	case str(args, "parent_id") != "":
		parent := f.item(str(args, "parent_id"))
		if parent == nil {
			return notFound("Parent item")
		}
		it.ParentID, it.ProjectID, it.SectionID = parent.ID, parent.ProjectID, parent.SectionID
	case str(args, "section_id") != "":
		s := f.section(str(args, "section_id"))
		if s == nil {
			return notFound("Section")
		}
		it.ParentID, it.ProjectID, it.SectionID = "", s.ProjectID, s.ID
	case str(args, "project_id") != "":
		if f.project(str(args, "project_id")) == nil {
			return notFound("Project")
		}
		it.ParentID, it.ProjectID, it.SectionID = "", str(args, "project_id"), ""
	default:
		return queue.Status{ErrorCode: CodeInvalidArgs, Error: "Missing destination"}
	}
	it.UpdatedAt = f.stamp()
	f.touch("item", it.ID)
	f.carryChildren(it.ID, it.ProjectID, it.SectionID)
	return statusOK
}

// carryChildren moves the descendants of id along with it.
func (f *FakeTarget) carryChildren(id, projectID, sectionID string) {
	for i := range f.snap.Items {
		c := &f.snap.Items[i]
		if c.ParentID != id || c.IsDeleted {
			continue
		}
		c.ProjectID, c.SectionID = projectID, sectionID
		c.UpdatedAt = f.stamp()
		f.touch("item", c.ID)
		f.carryChildren(c.ID, projectID, sectionID)
	}
}

func (f *FakeTarget) deleteItem(id string) {
	for i := range f.snap.Items {
		it := &f.snap.Items[i]
		if it.IsDeleted || (it.ID != id && it.ParentID != id) {
			continue
		}
		it.IsDeleted = true
		it.UpdatedAt = f.stamp()
		f.touch("item", it.ID)
		if it.ID != id {
			f.deleteItem(it.ID)
		}
	}
}

func (f *FakeTarget) deleteContents(projectID string) {
	for i := range f.snap.Sections {
		if s := &f.snap.Sections[i]; s.ProjectID == projectID && !s.IsDeleted {
			s.IsDeleted = true
			f.touch("section", s.ID)
		}
	}
	for _, it := range f.snap.Items {
		if it.ProjectID == projectID && !it.IsDeleted {
			f.deleteItem(it.ID)
		}
	}
}

func applyItemFields(it *snapshot.Item, args map[string]any) {
	if v, set := args["content"]; set {
		it.Content, _ = v.(string)
	}
	if v, set := args["description"]; set {
		it.Description, _ = v.(string)
	}
	if v, set := args["labels"]; set {
		it.Labels = []string{}
		if list, isList := v.([]any); isList {
			for _, l := range list {
				if s, isStr := l.(string); isStr {
					it.Labels = append(it.Labels, s)
				}
			}
		}
	}
	if v, set := args["due"]; set {
		it.Due = nil
		if m, isMap := v.(map[string]any); isMap {
			it.Due = &snapshot.Due{Date: str(m, "date"), String: str(m, "string")}
			if r, isBool := m["is_recurring"].(bool); isBool {
				it.Due.IsRecurring = r
			}
		}
	}
	if v, set := args["deadline"]; set {
		it.Deadline = nil
		if m, isMap := v.(map[string]any); isMap {
			it.Deadline = &snapshot.Deadline{Date: str(m, "date")}
		}
	}
}

// resolveArgs rewrites temp ids minted earlier in the same batch.
func resolveArgs(v map[string]any, mapping map[string]string) map[string]any {
	out := make(map[string]any, len(v))
	for k, val := range v {
		switch x := val.(type) {
		case string:
			if real, found := mapping[x]; found {
				out[k] = real
				continue
			}
			out[k] = x
		default:
			out[k] = val
		}
	}
	return out
}

func str(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func num(m map[string]any, key string) int {
	switch n := m[key].(type) {
	case float64:
		return int(n)
	case int:
		return n
	}
	return 0
}

func orders(args map[string]any, key string) []map[string]any {
	list, _ := args[key].([]any)
	out := make([]map[string]any, 0, len(list))
	for _, e := range list {
		if m, isMap := e.(map[string]any); isMap {
			out = append(out, m)
		}
	}
	return out
}

func (f *FakeTarget) mint() string {
	f.next++
	return fmt.Sprintf("tgt%d", f.next)
}

func (f *FakeTarget) stamp() *time.Time {
	t := f.now().UTC()
	return &t
}

func (f *FakeTarget) touch(kind, id string) {
	f.touched[kind+":"+id] = f.seq
}

func (f *FakeTarget) item(id string) *snapshot.Item {
	for i := range f.snap.Items {
		if f.snap.Items[i].ID == id && !f.snap.Items[i].IsDeleted {
			return &f.snap.Items[i]
		}
	}
	return nil
}

func (f *FakeTarget) note(id string) *snapshot.Note {
	for i := range f.snap.Notes {
		if f.snap.Notes[i].ID == id && !f.snap.Notes[i].IsDeleted {
			return &f.snap.Notes[i]
		}
	}
	return nil
}

func (f *FakeTarget) project(id string) *snapshot.Project {
	for i := range f.snap.Projects {
		if f.snap.Projects[i].ID == id && !f.snap.Projects[i].IsDeleted {
			return &f.snap.Projects[i]
		}
	}
	return nil
}

func (f *FakeTarget) section(id string) *snapshot.Section {
	for i := range f.snap.Sections {
		if f.snap.Sections[i].ID == id && !f.snap.Sections[i].IsDeleted {
			return &f.snap.Sections[i]
		}
	}
	return nil
}

// live keeps only what a full sync returns.
func live(kind string, rec any) bool {
	switch r := rec.(type) {
	case snapshot.Project:
		return !r.IsDeleted && !r.IsArchived
	case snapshot.Section:
		return !r.IsDeleted && !r.IsArchived
	case snapshot.Item:
		return !r.IsDeleted && !r.Checked
	case snapshot.Note:
		return !r.IsDeleted
	case snapshot.Label:
		return !r.IsDeleted
	}
	return true
}

// copyOf deep-copies the records whose key passes keep and, when given,
// every filter.
func (f *FakeTarget) copyOf(keep func(key string) bool, filters ...func(kind string, rec any) bool) *snapshot.Snapshot {
	pass := func(kind, id string, rec any) bool {
		if !keep(kind + ":" + id) {
			return false
		}
		for _, fl := range filters {
			if !fl(kind, rec) {
				return false
			}
		}
		return true
	}

	var out snapshot.Snapshot
	for _, p := range f.snap.Projects {
		if pass("project", p.ID, p) {
			out.Projects = append(out.Projects, p)
		}
	}
	for _, s := range f.snap.Sections {
		if pass("section", s.ID, s) {
			out.Sections = append(out.Sections, s)
		}
	}
	for _, it := range f.snap.Items {
		if pass("item", it.ID, it) {
			out.Items = append(out.Items, cloneItem(it))
		}
	}
	for _, n := range f.snap.Notes {
		if pass("note", n.ID, n) {
			out.Notes = append(out.Notes, n)
		}
	}
	for _, l := range f.snap.Labels {
		if pass("label", l.ID, l) {
			out.Labels = append(out.Labels, l)
		}
	}
	return &out
}

func cloneItem(it snapshot.Item) snapshot.Item {
	it.Labels = append([]string{}, it.Labels...)
	if it.Due != nil {
		d := *it.Due
		it.Due = &d
	}
	if it.Deadline != nil {
		d := *it.Deadline
		it.Deadline = &d
	}
	return it
}
