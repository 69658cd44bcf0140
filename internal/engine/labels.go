package engine

import (
	"cmp"
	"slices"

	"github.com/soimon/notion-todoist/internal/model"
	"github.com/soimon/notion-todoist/internal/snapshot"
)

// syncLabels mirrors the Source label options on Target, verbs first and
// then places, each kind in its own color and sorted by Source color with
// names descending within a color. Mirrored labels whose color or position
// drifted are updated. Labels used by Source tasks that no option covers
// are created too. Labels are never removed.
func (p *pass) syncLabels() {
	existing := make(map[string]snapshot.Label)
	for _, l := range p.snap.Labels {
		if !l.IsDeleted {
			existing[l.Name] = l
		}
	}

	order := 0
	for _, kind := range []model.LabelKind{model.LabelVerb, model.LabelPlace} {
		color := p.e.labelColor
		if kind == model.LabelVerb {
			color = p.e.verbColor
		}
		for _, opt := range labelsOfKind(p.sourceLabels, kind) {
			if cur, ok := existing[opt.Name]; !ok {
				p.addLabel(opt.Name, color, order)
				existing[opt.Name] = snapshot.Label{Name: opt.Name}
			} else if cur.ID != "" && (cur.ItemOrder != order || (color != "" && cur.Color != color)) {
				fields := map[string]any{"item_order": order}
				if color != "" {
					fields["color"] = color
				}
				p.target.UpdateLabel(cur.ID, fields)
				p.report.Target.Labels.Update++
			}
			order++
		}
	}

	for _, t := range p.sourceTasks {
		for _, name := range t.Labels {
			if name == "" {
				continue
			}
			if _, ok := existing[name]; ok {
				continue
			}
			existing[name] = snapshot.Label{Name: name}
			p.addLabel(name, p.e.labelColor, -1)
		}
	}
}

// addLabel queues a label_add. A negative order leaves placement to Target.
func (p *pass) addLabel(name, color string, order int) {
	args := map[string]any{"name": name}
	if color != "" {
		args["color"] = color
	}
	if order >= 0 {
		args["item_order"] = order
	}
	p.target.AddLabel(args)
	p.report.Target.Labels.Add++
}

// labelsOfKind returns the options of one kind, grouped by Source color and
// with names descending within a color. Repeated names keep the first.
func labelsOfKind(labels []model.Label, kind model.LabelKind) []model.Label {
	var out []model.Label
	seen := make(map[string]bool)
	for _, l := range labels {
		if l.Kind != kind || l.Name == "" || seen[l.Name] {
			continue
		}
		seen[l.Name] = true
		out = append(out, l)
	}
	slices.SortStableFunc(out, func(a, b model.Label) int {
		if a.Color == b.Color {
			return cmp.Compare(b.Name, a.Name)
		}
		return cmp.Compare(a.Color, b.Color)
	})
	return out
}
