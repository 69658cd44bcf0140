package stamp

import (
	"crypto/md5"
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soimon/notion-todoist/internal/model"
)

func TestStamp_RoundTrip(t *testing.T) {
	s := Stamp{SourceID: "6a1c1e2b-8f3e-4c5f-9a0b-1c2d3e4f5a6b", ContentHash: "abc123"}

	text := s.String()
	assert.Equal(t, "[Open in Notion](notion://notion.so/6a1c1e2b8f3e4c5f9a0b1c2d3e4f5a6b#abc123)", text)

	got, ok := Extract(text)
	require.True(t, ok)
	assert.Equal(t, NormalizeID(s.SourceID), got.SourceID)
	assert.Equal(t, "abc123", got.ContentHash)
}

func TestExtract_RejectsOtherText(t *testing.T) {
	cases := map[string]string{
		"plain comment":  "remember to buy oat milk",
		"other link":     "[Open in Notion](https://example.com/abc#hash)",
		"missing hash":   "[Open in Notion](notion://notion.so/abc)",
		"wrong label":    "[Open](notion://notion.so/abc#hash)",
		"not at start":   "see [Open in Notion](notion://notion.so/abc#hash)",
		"empty fragment": "[Open in Notion](notion://notion.so/abc#)",
	}
	for name, text := range cases {
		t.Run(name, func(t *testing.T) {
			_, ok := Extract(text)
			assert.False(t, ok)
		})
	}
}

func TestExtract_WebLinkWithTitleSlug(t *testing.T) {
	got, ok := Extract("[Open in Notion](https://www.notion.so/Buy-milk-0123abcd#ff00)")
	require.True(t, ok)
	assert.Equal(t, "0123abcd", got.SourceID)
	assert.Equal(t, "ff00", got.ContentHash)
}

func TestAppifyLinks(t *testing.T) {
	assert.Equal(t,
		"see notion://notion.so/abc",
		AppifyLinks("see https://www.notion.so/abc"))
}

func TestHash_Stable(t *testing.T) {
	day := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	c := Content{Text: "Buy milk", Labels: []string{"errand", "shop"}, Date: &day}

	assert.Equal(t, Hash(c), Hash(c))
	assert.Len(t, Hash(c), 32)
}

func TestHash_LabelOrderIgnored(t *testing.T) {
	a := Content{Text: "Buy milk", Labels: []string{"errand", "shop"}}
	b := Content{Text: "Buy milk", Labels: []string{"shop", "errand"}}

	assert.Equal(t, Hash(a), Hash(b))
	assert.Equal(t, []string{"shop", "errand"}, b.Labels, "caller's labels must not be reordered")
}

func TestHash_ContentChanges(t *testing.T) {
	a := Content{Text: "Buy milk"}
	b := Content{Text: "Buy oat milk"}

	assert.NotEqual(t, Hash(a), Hash(b))
}

func TestHash_DatesByCalendarDay(t *testing.T) {
	morning := time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC)
	evening := time.Date(2024, 1, 10, 20, 0, 0, 0, time.UTC)
	next := time.Date(2024, 1, 11, 8, 0, 0, 0, time.UTC)

	assert.Equal(t, Hash(Content{Text: "x", Date: &morning}), Hash(Content{Text: "x", Date: &evening}))
	assert.NotEqual(t, Hash(Content{Text: "x", Date: &morning}), Hash(Content{Text: "x", Date: &next}))
	assert.NotEqual(t, Hash(Content{Text: "x", Date: &morning}), Hash(Content{Text: "x", Deadline: &morning}))
}

func TestHash_Layout(t *testing.T) {
	day := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	sum := md5.Sum([]byte("Buy milk-errand,shop-2024-01-10-no_deadline"))

	got := Hash(Content{Text: "Buy milk", Labels: []string{"shop", "errand"}, Date: &day})
	assert.Equal(t, hex.EncodeToString(sum[:]), got)
	assert.Equal(t, Hash(Content{Text: "Buy milk"}), Hash(Content{Text: "Buy milk", Labels: []string{}}))
}

func TestHash_NFC(t *testing.T) {
	composed := "Caf\u00e9"
	decomposed := "Cafe\u0301"

	assert.Equal(t, Hash(Content{Text: composed}), Hash(Content{Text: decomposed}))
}

func TestHash_UnnormalizedStampDiverges(t *testing.T) {
	decomposed := "Cafe\u0301"
	sum := md5.Sum([]byte(decomposed + "--no_date-no_deadline"))
	stored := hex.EncodeToString(sum[:])

	task := model.Task{Content: decomposed, Target: &model.TargetTask{StampHash: stored}}
	assert.True(t, Diverged(task))

	task.Target.StampHash = HashTask(task)
	assert.False(t, Diverged(task))
}

func TestDiverged(t *testing.T) {
	task := model.Task{Content: "Buy milk", Target: &model.TargetTask{}}
	assert.False(t, Diverged(task), "unstamped tasks never diverge")

	task.Target.StampHash = HashTask(task)
	assert.False(t, Diverged(task))

	task.Content = "Buy oat milk"
	assert.True(t, Diverged(task))
}
