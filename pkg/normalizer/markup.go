package normalizer

import (
	"regexp"
	"strings"
)

// Canonical markers. Upstream <details> blocks are rewritten to this pair
// first; rendering modes substitute the pair afterwards.
const (
	openMarker  = "<reasoning>"
	closeMarker = "</reasoning>"
)

// Tool-call wrapper markers used by the upstream around structured
// invocation fragments.
const (
	toolBlockPrefix = "<glm_block"
	toolBlockClose  = "</glm_block>"
)

var (
	// summaryLineRe matches a <summary> element on one line together with
	// surrounding newlines. Summaries never span lines in upstream chunks.
	summaryLineRe = regexp.MustCompile(`\n*<summary>.*?</summary>\n*`)

	// summarySpanRe matches a summary element across lines, for the
	// details-mode trailing summary capture.
	summarySpanRe = regexp.MustCompile(`(?s)<summary>.*?</summary>`)

	durationAttrRe = regexp.MustCompile(`duration="(\d+)"`)

	// quotePrefixRe matches the quote-style "> " line prefix the upstream
	// puts on thinking text.
	quotePrefixRe = regexp.MustCompile(`\n>\s?`)

	openDetailsRe  = regexp.MustCompile(`<details[^>]*>\n*`)
	closeDetailsRe = regexp.MustCompile(`\n*</details>`)

	// Marker removal for the reasoning and strip modes, collapsing the
	// newlines the canonical rewrite inserted around the markers.
	openMarkerNewlinesRe  = regexp.MustCompile(`<reasoning>\n*`)
	closeMarkerNewlinesRe = regexp.MustCompile(`\n*</reasoning>`)
)

// stripClosedBlocks removes every balanced <details ...>…</details> region
// from s, including nested ones, via a depth-counting scan. Unbalanced
// markers, the normal case for streamed fragments, are left untouched for
// the canonical rewrite that follows.
func stripClosedBlocks(s string) string {
	if !strings.Contains(s, "<details") {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))

	for len(s) > 0 {
		start := strings.Index(s, "<details")
		if start < 0 {
			b.WriteString(s)
			break
		}

		end, ok := matchBlockEnd(s[start:])
		if !ok {
			// No balanced close for this open: keep the rest verbatim.
			b.WriteString(s)
			break
		}

		b.WriteString(s[:start])
		s = s[start+end:]
	}

	return b.String()
}

// matchBlockEnd scans s, which starts at a "<details" open tag, and returns
// the offset just past the close tag that balances it.
func matchBlockEnd(s string) (int, bool) {
	depth := 0
	i := 0
	for i < len(s) {
		switch {
		case strings.HasPrefix(s[i:], "<details"):
			gt := strings.IndexByte(s[i:], '>')
			if gt < 0 {
				return 0, false
			}
			depth++
			i += gt + 1
		case strings.HasPrefix(s[i:], "</details>"):
			depth--
			i += len("</details>")
			if depth == 0 {
				return i, true
			}
		default:
			i++
		}
	}
	return 0, false
}

// canonicalize rewrites remaining upstream collapsible markers into the
// canonical marker pair, collapsing newlines immediately around them.
func canonicalize(s string) string {
	s = openDetailsRe.ReplaceAllString(s, openMarker+"\n\n")
	s = closeDetailsRe.ReplaceAllString(s, "\n\n"+closeMarker)
	return s
}

// stripDeprecatedTags drops wrapper tags older upstream versions emit.
func stripDeprecatedTags(s string) string {
	s = strings.ReplaceAll(s, "</thinking>", "")
	s = strings.ReplaceAll(s, "<Full>", "")
	s = strings.ReplaceAll(s, "</Full>", "")
	return s
}

// exciseToolWrapper removes the vendor wrapper markers around a tool-call
// fragment and returns the raw inner fragment for external reassembly.
func exciseToolWrapper(s string) string {
	for {
		start := strings.Index(s, toolBlockPrefix)
		if start < 0 {
			break
		}
		gt := strings.IndexByte(s[start:], '>')
		if gt < 0 {
			// Opening marker split across chunks: drop the partial tag.
			s = s[:start]
			break
		}
		s = s[:start] + s[start+gt+1:]
	}

	return strings.ReplaceAll(s, toolBlockClose, "")
}
