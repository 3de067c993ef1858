package client

import (
	"regexp"
	"strings"
)

// placeholderPattern matches a delimited reference token carrying an
// opaque key, e.g. 【0†source】.
var placeholderPattern = regexp.MustCompile(`【([^【】]*)】`)

// Transform replaces every placeholder token whose key appears in state
// with the mapped rendering fragment. Unmatched placeholders are left
// verbatim. The scan is a single left-to-right pass over the input, so
// placeholders inside substituted fragments are never expanded, and
// re-running on the output is safe.
func Transform(text string, state map[string]string) string {
	if len(state) == 0 || !strings.Contains(text, "【") {
		return text
	}
	return placeholderPattern.ReplaceAllStringFunc(text, func(match string) string {
		key := strings.TrimSuffix(strings.TrimPrefix(match, "【"), "】")
		if fragment, ok := state[key]; ok {
			return fragment
		}
		return match
	})
}
