package generator

import (
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/vnmchuo/contentgen/internal/provider"
)

// MarkupPolicy allows user-generated-content tags plus the block comment
// delimiters and class names the block editor relies on.
func MarkupPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowComments()
	p.AllowAttrs("class").Globally()
	p.AllowElements("figure", "figcaption", "hr")
	return p
}

var (
	leadingFence  = regexp.MustCompile("^```(?:json)?\\s*")
	trailingFence = regexp.MustCompile("```$")
)

// stripFences removes a leading ```json / ``` and a trailing ``` marker.
func stripFences(s string) string {
	s = leadingFence.ReplaceAllString(strings.TrimSpace(s), "")
	return trailingFence.ReplaceAllString(s, "")
}

// termNames keeps non-empty sanitized names, in order, without duplicates.
// Entries may be strings or objects carrying a "name".
func termNames(v any) []string {
	out := []string{}
	list, ok := v.([]any)
	if !ok {
		return out
	}

	seen := make(map[string]bool, len(list))
	for _, item := range list {
		var name string
		switch t := item.(type) {
		case string:
			name = t
		case map[string]any:
			s, ok := t["name"].(string)
			if !ok {
				continue
			}
			name = s
		default:
			continue
		}
		name = provider.SanitizeText(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

// cleanNames applies termNames to caller-supplied names.
func cleanNames(names []string) []string {
	list := make([]any, len(names))
	for i, n := range names {
		list[i] = n
	}
	return termNames(list)
}
