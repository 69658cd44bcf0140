package stamp

import (
	"crypto/md5"
	"encoding/hex"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/soimon/notion-todoist/internal/model"
)

const (
	noDate     = "no_date"
	noDeadline = "no_deadline"
	dateLayout = "2006-01-02"
)

// Content is the part of a Target task that the hash covers.
type Content struct {
	Text     string
	Labels   []string
	Date     *time.Time
	Deadline *time.Time
}

// Hash fingerprints c.
//
// Text and labels are NFC-normalized and labels sorted, so canonically equal
// input always hashes identically. Dates are reduced to UTC calendar days.
// The digest layout matches stamps already stored on Target tasks, but those
// were computed over unnormalized text: a stamp over decomposed text reads
// as diverged until the rehash command rewrites it.
func Hash(c Content) string {
	labels := make([]string, len(c.Labels))
	for i, l := range c.Labels {
		labels[i] = norm.NFC.String(l)
	}
	slices.Sort(labels)

	input := strings.Join([]string{
		norm.NFC.String(c.Text),
		strings.Join(labels, ","),
		formatDay(c.Date, noDate),
		formatDay(c.Deadline, noDeadline),
	}, "-")

	sum := md5.Sum([]byte(input))
	return hex.EncodeToString(sum[:])
}

// HashTask fingerprints the Target-visible fields of a task.
func HashTask(t model.Task) string {
	return Hash(Content{
		Text:     t.Content,
		Labels:   t.Labels,
		Date:     t.Scheduled,
		Deadline: t.Deadline,
	})
}

// Diverged reports whether a Target task was edited on Target since the
// engine last stamped it. Tasks without a stamp never diverge.
func Diverged(t model.Task) bool {
	if t.Target == nil || t.Target.StampHash == "" {
		return false
	}
	current := t.Target.ContentHash
	if current == "" {
		current = HashTask(t)
	}
	return current != t.Target.StampHash
}

// FormatDay renders a date as a UTC calendar day.
func FormatDay(d time.Time) string {
	return d.UTC().Format(dateLayout)
}

func formatDay(d *time.Time, missing string) string {
	if d == nil {
		return missing
	}
	return FormatDay(*d)
}
