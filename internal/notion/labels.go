package notion

import (
	"context"
	"fmt"
	"net/http"

	"github.com/soimon/notion-todoist/internal/model"
)

type database struct {
	Properties map[string]schemaProperty `json:"properties"`
}

type schemaProperty struct {
	Type        string      `json:"type"`
	Select      *optionList `json:"select,omitempty"`
	MultiSelect *optionList `json:"multi_select,omitempty"`
}

type optionList struct {
	Options []schemaOption `json:"options"`
}

type schemaOption struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

// FetchLabels reads the label options of the tasks database: the options of
// the verb select and of the labels multi-select.
func (c *Client) FetchLabels(ctx context.Context) ([]model.Label, error) {
	s := c.schema
	if s.Task.Verb == "" && s.Task.Labels == "" {
		return nil, nil
	}
	if s.TasksDB == "" {
		return nil, fmt.Errorf("fetch labels: database id is empty")
	}
	var db database
	if err := c.call(ctx, http.MethodGet, "/v1/databases/"+s.TasksDB, nil, &db); err != nil {
		return nil, fmt.Errorf("fetch labels: %w", err)
	}

	var out []model.Label
	verbs := make(map[string]bool)
	if prop, ok := db.Properties[s.Task.Verb]; ok && s.Task.Verb != "" && prop.Select != nil {
		for _, o := range prop.Select.Options {
			out = append(out, model.Label{Name: o.Name, Kind: model.LabelVerb, Color: o.Color})
			verbs[o.Name] = true
		}
	}
	if prop, ok := db.Properties[s.Task.Labels]; ok && s.Task.Labels != "" && prop.MultiSelect != nil {
		for _, o := range prop.MultiSelect.Options {
			out = append(out, model.Label{Name: o.Name, Kind: model.LabelPlace, Color: o.Color})
		}
	}

	c.mu.Lock()
	c.verbs = verbs
	c.mu.Unlock()
	c.logger.Debug("notion labels fetched", "labels", len(out), "verbs", len(verbs))
	return out, nil
}

// splitLabels separates the verb, the first label naming a known verb
// option, from the rest.
func (c *Client) splitLabels(labels []string) (verb string, rest []string) {
	if c.schema.Task.Verb == "" {
		return "", labels
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, l := range labels {
		if verb == "" && c.verbs[l] {
			verb = l
			continue
		}
		rest = append(rest, l)
	}
	return verb, rest
}
