package queue

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// CommandType is a Target sync command kind.
type CommandType string

const (
	ItemAdd        CommandType = "item_add"
	ItemUpdate     CommandType = "item_update"
	ItemClose      CommandType = "item_close"
	ItemUncomplete CommandType = "item_uncomplete"
	ItemMove       CommandType = "item_move"
	ItemDelete     CommandType = "item_delete"

	NoteAdd    CommandType = "note_add"
	NoteUpdate CommandType = "note_update"
	NoteDelete CommandType = "note_delete"

	ProjectAdd     CommandType = "project_add"
	ProjectUpdate  CommandType = "project_update"
	ProjectMove    CommandType = "project_move"
	ProjectDelete  CommandType = "project_delete"
	ProjectReorder CommandType = "project_reorder"

	SectionAdd     CommandType = "section_add"
	SectionUpdate  CommandType = "section_update"
	SectionMove    CommandType = "section_move"
	SectionDelete  CommandType = "section_delete"
	SectionReorder CommandType = "section_reorder"

	LabelAdd    CommandType = "label_add"
	LabelUpdate CommandType = "label_update"
)

// Creates reports whether the command kind creates a record and therefore
// carries a temporary id.
func (t CommandType) Creates() bool {
	switch t {
	case ItemAdd, NoteAdd, ProjectAdd, SectionAdd, LabelAdd:
		return true
	}
	return false
}

// Command is one queued Target mutation in the sync API wire shape.
type Command struct {
	Type   CommandType    `json:"type"`
	UUID   string         `json:"uuid"`
	TempID string         `json:"temp_id,omitempty"`
	Args   map[string]any `json:"args"`
}

// Response is the part of a sync API reply the queue consumes.
type Response struct {
	SyncToken     string            `json:"sync_token"`
	SyncStatus    map[string]Status `json:"sync_status"`
	TempIDMapping map[string]string `json:"temp_id_mapping"`
}

// Status is the per-command outcome. The API reports success as the bare
// string "ok" and failure as an object.
type Status struct {
	OK        bool   `json:"-"`
	ErrorCode int    `json:"error_code"`
	Error     string `json:"error"`
}

// UnmarshalJSON accepts both the "ok" string and the error object.
func (s *Status) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte(`"ok"`)) {
		*s = Status{OK: true}
		return nil
	}
	type plain Status
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("decode sync status: %w", err)
	}
	*s = Status(p)
	return nil
}

// MarshalJSON mirrors UnmarshalJSON.
func (s Status) MarshalJSON() ([]byte, error) {
	if s.OK {
		return []byte(`"ok"`), nil
	}
	type plain Status
	return json.Marshal(plain(s))
}

// Failure is a command the Target rejected.
type Failure struct {
	Command Command
	Code    int
	Message string
}

func (f Failure) String() string {
	return fmt.Sprintf("%s %s: %s (code %d)", f.Command.Type, f.Command.UUID, f.Message, f.Code)
}

// rewrite replaces every string in v that is a key of ids with its value.
// Maps and slices are copied, never modified in place.
func rewrite(v any, ids map[string]string) any {
	switch x := v.(type) {
	case string:
		if real, ok := ids[x]; ok {
			return real
		}
		return x
	case []string:
		out := make([]string, len(x))
		for i, s := range x {
			out[i] = rewrite(s, ids).(string)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = rewrite(e, ids)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = rewrite(e, ids)
		}
		return out
	case []map[string]any:
		out := make([]map[string]any, len(x))
		for i, e := range x {
			out[i] = rewrite(e, ids).(map[string]any)
		}
		return out
	default:
		return v
	}
}
