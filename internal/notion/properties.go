package notion

import (
	"strings"
	"time"

	"github.com/soimon/notion-todoist/internal/stamp"
)

const (
	dayLayout = "2006-01-02"
)

type page struct {
	ID             string              `json:"id"`
	CreatedTime    time.Time           `json:"created_time"`
	LastEditedTime time.Time           `json:"last_edited_time"`
	Archived       bool                `json:"archived"`
	InTrash        bool                `json:"in_trash"`
	Properties     map[string]property `json:"properties"`
}

type property struct {
	Type        string      `json:"type"`
	Title       []richText  `json:"title,omitempty"`
	RichText    []richText  `json:"rich_text,omitempty"`
	Status      *option     `json:"status,omitempty"`
	Select      *option     `json:"select,omitempty"`
	MultiSelect []option    `json:"multi_select,omitempty"`
	Date        *dateValue  `json:"date,omitempty"`
	Relation    []relation  `json:"relation,omitempty"`
	Checkbox    bool        `json:"checkbox,omitempty"`
	Formula     *formulaVal `json:"formula,omitempty"`
}

type richText struct {
	PlainText string `json:"plain_text"`
}

type option struct {
	Name string `json:"name"`
}

type dateValue struct {
	Start string `json:"start"`
}

type relation struct {
	ID string `json:"id"`
}

type formulaVal struct {
	Type    string `json:"type"`
	String  string `json:"string"`
	Boolean bool   `json:"boolean"`
}

func (p page) prop(name string) property {
	if name == "" {
		return property{}
	}
	return p.Properties[name]
}

func (p page) lastEdited() time.Time {
	if p.LastEditedTime.IsZero() {
		return p.CreatedTime
	}
	return p.LastEditedTime
}

// text joins the plain text of a title or rich text property.
func (p property) text() string {
	segments := p.Title
	if len(segments) == 0 {
		segments = p.RichText
	}
	var b strings.Builder
	for _, s := range segments {
		b.WriteString(s.PlainText)
	}
	return strings.TrimSpace(b.String())
}

// choice returns the status or select option name.
func (p property) choice() string {
	switch {
	case p.Status != nil:
		return p.Status.Name
	case p.Select != nil:
		return p.Select.Name
	}
	return ""
}

func (p property) names() []string {
	if len(p.MultiSelect) == 0 {
		return nil
	}
	out := make([]string, len(p.MultiSelect))
	for i, o := range p.MultiSelect {
		out[i] = o.Name
	}
	return out
}

func (p property) relations() []string {
	if len(p.Relation) == 0 {
		return nil
	}
	out := make([]string, len(p.Relation))
	for i, r := range p.Relation {
		out[i] = normalizeID(r.ID)
	}
	return out
}

func (p property) firstRelation() string {
	if len(p.Relation) == 0 {
		return ""
	}
	return normalizeID(p.Relation[0].ID)
}

func (p property) flag() bool {
	if p.Formula != nil {
		return p.Formula.Boolean
	}
	return p.Checkbox
}

// date parses the start of a date property. Day-only values come back as
// UTC midnight with withTime false.
func (p property) date() (d *time.Time, withTime bool) {
	if p.Date == nil || p.Date.Start == "" {
		return nil, false
	}
	if t, err := time.Parse(dayLayout, p.Date.Start); err == nil {
		return &t, false
	}
	if t, err := time.Parse(time.RFC3339, p.Date.Start); err == nil {
		t = t.UTC()
		return &t, true
	}
	return nil, false
}

func normalizeID(id string) string { return stamp.NormalizeID(id) }

// Property writers, in the shape PATCH /v1/pages expects.

func titleValue(s string) map[string]any {
	return map[string]any{"title": []any{textSegment(s)}}
}

func richTextValue(s string) map[string]any {
	if s == "" {
		return map[string]any{"rich_text": []any{}}
	}
	return map[string]any{"rich_text": []any{textSegment(s)}}
}

func textSegment(s string) map[string]any {
	return map[string]any{"type": "text", "text": map[string]any{"content": s}}
}

func statusValue(name string) map[string]any {
	return map[string]any{"status": map[string]any{"name": name}}
}

func dateValueOf(d *time.Time, withTime bool) map[string]any {
	if d == nil {
		return map[string]any{"date": nil}
	}
	start := d.UTC().Format(dayLayout)
	if withTime {
		start = d.UTC().Format(time.RFC3339)
	}
	return map[string]any{"date": map[string]any{"start": start}}
}

func selectValue(name string) map[string]any {
	if name == "" {
		return map[string]any{"select": nil}
	}
	return map[string]any{"select": map[string]any{"name": name}}
}

func multiSelectValue(names []string) map[string]any {
	opts := make([]any, 0, len(names))
	for _, n := range names {
		opts = append(opts, map[string]any{"name": n})
	}
	return map[string]any{"multi_select": opts}
}

func relationValue(ids ...string) map[string]any {
	rels := make([]any, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			rels = append(rels, map[string]any{"id": id})
		}
	}
	return map[string]any{"relation": rels}
}

// props collects property writes, skipping properties the schema leaves
// unnamed.
type props map[string]any

func (p props) set(name string, value map[string]any) {
	if name != "" {
		p[name] = value
	}
}
