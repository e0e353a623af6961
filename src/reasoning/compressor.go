package reasoning

import "strings"

// DefaultCompressorBudget bounds the compressed memory block handed to
// the generation prompt.
const DefaultCompressorBudget = 2000

// ContextCompressor flattens ranked memories into a single bounded text
// block: whitespace-normalized, deduplicated, one "- " line each,
// truncated once the character budget is spent.
type ContextCompressor struct {
	MaxChars int
}

func NewContextCompressor(maxChars int) *ContextCompressor {
	if maxChars <= 0 {
		maxChars = DefaultCompressorBudget
	}
	return &ContextCompressor{MaxChars: maxChars}
}

func (c *ContextCompressor) Compress(candidates []Candidate) string {
	seen := make(map[string]struct{}, len(candidates))
	var lines []string
	used := 0

	for _, cand := range candidates {
		clean := strings.Join(strings.Fields(cand.Text), " ")
		if clean == "" {
			continue
		}
		if _, dup := seen[clean]; dup {
			continue
		}
		seen[clean] = struct{}{}

		if used+len(clean) > c.MaxChars {
			break
		}
		lines = append(lines, "- "+clean)
		used += len(clean)
	}

	return strings.Join(lines, "\n")
}
