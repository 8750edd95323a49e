package feed

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/ricirt/feedrelay/internal/domain"
)

var stripPolicy = bluemonday.StrictPolicy()

// CleanText removes markup the upstream sometimes embeds in item text and
// decodes entities, leaving plain text suitable for re-publishing.
func CleanText(s string) string {
	return strings.TrimSpace(html.UnescapeString(stripPolicy.Sanitize(s)))
}

// Compact keeps the id, text and media references of an item: enough to
// publish it again without re-fetching.
func Compact(it Item) domain.Snapshot {
	return domain.Snapshot{
		ID:        it.ID(),
		Author:    it.Author(),
		URL:       it.URL(),
		Text:      it.Text(),
		MediaURLs: it.MediaURLs(),
	}
}
