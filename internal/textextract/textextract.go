// Package textextract turns a status's HTML content into plain text and
// surfaces the signals the scorer and filter need from it: emoji density
// and whether the visible content carries a link, without being fooled by
// markup (emoji living inside a <span>, or a hashtag/mention anchor href
// that isn't itself a link the author wrote).
package textextract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// PlainText strips HTML tags from content and returns the rendered text.
// Malformed HTML does not error; goquery degrades gracefully, and if the
// parser does fail the original content is returned unchanged.
func PlainText(content string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return content
	}
	return doc.Text()
}

// ContainsLink reports whether content's visible text contains a URL
// (https?://, www.), matching the spec's "content contains any URL" spam
// signal. Anchor hrefs are deliberately not scanned: Mastodon renders every
// hashtag and mention as an <a href>, so doing so would flag nearly any
// hashtagged post as spam.
func ContainsLink(content string) bool {
	return hasURLPattern(PlainText(content))
}

func hasURLPattern(s string) bool {
	lower := strings.ToLower(s)
	return strings.Contains(lower, "http://") ||
		strings.Contains(lower, "https://") ||
		strings.Contains(lower, "www.")
}

// CountEmoji counts runes falling in the standard Unicode emoji ranges:
// pictographs, transport & map symbols, flags, and dingbats.
func CountEmoji(content string) int {
	text := PlainText(content)
	count := 0
	for _, r := range text {
		switch {
		case r >= 0x1F300 && r <= 0x1F5FF: // misc symbols & pictographs
			count++
		case r >= 0x1F600 && r <= 0x1F64F: // emoticons
			count++
		case r >= 0x1F680 && r <= 0x1F6FF: // transport & map symbols
			count++
		case r >= 0x1F1E6 && r <= 0x1F1FF: // regional indicators (flags)
			count++
		case r >= 0x2600 && r <= 0x26FF: // misc symbols
			count++
		case r >= 0x2700 && r <= 0x27BF: // dingbats
			count++
		case r >= 0x1F900 && r <= 0x1F9FF: // supplemental symbols & pictographs
			count++
		}
	}
	return count
}
