package pagination

import (
	"net/url"
	"regexp"
	"strconv"
)

// cursorStartToken is the literal page value Canvas uses for the first
// page of a bookmark-capable collection. A rel="last" link pointing at
// it means the collection has exactly one page.
const cursorStartToken = "first"

// linkEntryRe matches one `<url>; rel="relation"` entry of a Link header.
var linkEntryRe = regexp.MustCompile(`<([^>]+)>\s*;\s*rel="([^"]+)"`)

// parseLinks extracts the relation → URL pairs from a Link header.
func parseLinks(header string) map[string]string {
	links := make(map[string]string)
	for _, match := range linkEntryRe.FindAllStringSubmatch(header, -1) {
		links[match[2]] = match[1]
	}
	return links
}

// pageParam returns the page query parameter of a link URL.
func pageParam(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	page := u.Query().Get("page")
	if page == "" {
		return "", false
	}
	return page, true
}

// numericPage interprets a page token as a page number. Any token that
// is not a positive integer is a bookmark.
func numericPage(token string) (int, bool) {
	n, err := strconv.Atoi(token)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}
