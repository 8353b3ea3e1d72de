// Package citation derives human-readable source references from the
// passages used to answer a question.
package citation

import (
	"fmt"
	"path"
	"strings"

	"github.com/mskwm/briefd/internal/kb"
)

// Citation is a deduplicated, human-readable reference to a source document.
type Citation struct {
	Label string
}

// Extract derives citations from passages in the order given (post-rerank
// order). Passages sharing a source URI collapse into one citation; the
// first occurrence wins, including its page number. Passages without a
// source URI are skipped. Pure and total: never fails, returns an empty
// slice for empty input.
func Extract(passages []kb.Passage) []Citation {
	var out []Citation
	seen := make(map[string]struct{}, len(passages))

	for _, p := range passages {
		uri := strings.TrimSpace(p.SourceURI)
		if uri == "" {
			continue
		}
		if _, ok := seen[uri]; ok {
			continue
		}
		seen[uri] = struct{}{}

		label := path.Base(uri)
		if p.PageNumber > 0 {
			label = fmt.Sprintf("%s (Page %d)", label, p.PageNumber)
		}
		out = append(out, Citation{Label: label})
	}
	return out
}

// FormatBlock renders citations as the labeled section appended to an
// answer. Returns "" when there is nothing to cite.
func FormatBlock(citations []Citation) string {
	if len(citations) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("\n\n**Sources:**\n")
	for i, c := range citations {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("- " + c.Label)
	}
	return sb.String()
}
