// Package stamp computes content hashes of Target tasks and encodes the sync
// stamp note that links a Target task back to its Source record.
//
// Stamp format:
//
//	[Open in Notion](notion://notion.so/<source-id>#<content-hash>)
//
// Only notes that match this exact form are treated as sync metadata; any
// other note text, including plain user comments, yields no stamp.
package stamp

import (
	"fmt"
	"regexp"
	"strings"
)

// LinkText is the visible label of a stamp note.
const LinkText = "Open in Notion"

const (
	linkScheme = "notion://notion.so/"
	linkHost   = "notion.so"
)

var stampPattern = regexp.MustCompile(`^\[` + regexp.QuoteMeta(LinkText) + `\]\((.*)\)`)

// Stamp links a Target entity to its Source record and records the content
// hash the engine last wrote.
type Stamp struct {
	SourceID    string
	ContentHash string
}

// String renders the stamp as note content.
func (s Stamp) String() string {
	return fmt.Sprintf("[%s](%s#%s)", LinkText, Link(s.SourceID), s.ContentHash)
}

// Extract parses note content. It reports false for anything that is not an
// engine-written stamp.
func Extract(text string) (Stamp, bool) {
	m := stampPattern.FindStringSubmatch(text)
	if m == nil {
		return Stamp{}, false
	}
	link := m[1]
	id := IDFromLink(link)
	hash := HashFromLink(link)
	if id == "" || hash == "" {
		return Stamp{}, false
	}
	return Stamp{SourceID: id, ContentHash: hash}, true
}

// NormalizeID strips dashes so hyphenated and compact Source ids compare equal.
func NormalizeID(id string) string {
	return strings.ReplaceAll(id, "-", "")
}

// Link returns the app link of a Source record.
func Link(id string) string {
	return linkScheme + NormalizeID(id)
}

// IDFromLink returns the record id of a Source link: the last '-' or '/'
// separated segment, up to the fragment.
func IDFromLink(link string) string {
	if !strings.Contains(link, linkHost) {
		return ""
	}
	i := strings.LastIndexAny(link, "-/")
	last := link[i+1:]
	id, _, _ := strings.Cut(last, "#")
	return id
}

// HashFromLink returns the fragment of a Source link.
func HashFromLink(link string) string {
	if !strings.Contains(link, linkHost) || !strings.Contains(link, "#") {
		return ""
	}
	return link[strings.LastIndex(link, "#")+1:]
}

var webLink = regexp.MustCompile(`https://www\.notion\.so/`)

// AppifyLinks rewrites web links to Source records into app links.
func AppifyLinks(text string) string {
	return webLink.ReplaceAllString(text, linkScheme)
}
