package engine

import (
	"fmt"
	"io"
	"strings"
)

// Tally counts planned operations of one entity class on one store.
type Tally struct {
	Add    int `json:"add"`
	Remove int `json:"remove"`
	Update int `json:"update"`
}

// Total is the number of operations.
func (t Tally) Total() int { return t.Add + t.Remove + t.Update }

func (t Tally) String() string {
	var parts []string
	if t.Add > 0 {
		parts = append(parts, fmt.Sprintf("add %d", t.Add))
	}
	if t.Remove > 0 {
		parts = append(parts, fmt.Sprintf("remove %d", t.Remove))
	}
	if t.Update > 0 {
		parts = append(parts, fmt.Sprintf("update %d", t.Update))
	}
	return strings.Join(parts, "  ")
}

// StoreReport is the planned work for one store.
type StoreReport struct {
	Projects Tally `json:"projects"`
	Goals    Tally `json:"goals"`
	Tasks    Tally `json:"tasks"`
	Labels   Tally `json:"labels"`
}

// Empty reports whether nothing is planned for the store.
func (s StoreReport) Empty() bool {
	return s.Projects.Total()+s.Goals.Total()+s.Tasks.Total()+s.Labels.Total() == 0
}

// Report is the planned work of a pass, per store.
type Report struct {
	Source StoreReport `json:"source"`
	Target StoreReport `json:"target"`
}

// Empty reports whether the pass plans nothing at all.
func (r Report) Empty() bool { return r.Source.Empty() && r.Target.Empty() }

// WriteTo renders the report as indented plain text.
func (r Report) WriteTo(w io.Writer) (int64, error) {
	var b strings.Builder
	writeStore(&b, "SOURCE", r.Source)
	writeStore(&b, "TARGET", r.Target)
	n, err := io.WriteString(w, b.String())
	return int64(n), err
}

func writeStore(b *strings.Builder, title string, s StoreReport) {
	fmt.Fprintf(b, "%s\n", title)
	if s.Empty() {
		b.WriteString("  No changes\n")
		return
	}
	rows := []struct {
		name  string
		tally Tally
	}{
		{"Projects", s.Projects},
		{"Goals", s.Goals},
		{"Tasks", s.Tasks},
		{"Labels", s.Labels},
	}
	for _, row := range rows {
		if row.tally.Total() == 0 {
			continue
		}
		fmt.Fprintf(b, "  %-9s %s\n", row.name, row.tally)
	}
}
