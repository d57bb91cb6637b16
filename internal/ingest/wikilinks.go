package ingest

import (
	"regexp"
	"strings"
)

// wikilinkRe matches [[target]] and [[target|alias]].
var wikilinkRe = regexp.MustCompile(`\[\[([^\[\]|]+?)(?:\|([^\[\]]+?))?\]\]`)

// StripWikiLinks replaces [[wiki links]] with their alias, or their target
// when no alias is given.
func StripWikiLinks(content string) string {
	return wikilinkRe.ReplaceAllStringFunc(content, func(match string) string {
		parts := wikilinkRe.FindStringSubmatch(match)
		if alias := strings.TrimSpace(parts[2]); alias != "" {
			return alias
		}
		return strings.TrimSpace(parts[1])
	})
}
