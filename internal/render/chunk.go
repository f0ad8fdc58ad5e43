package render

import "strings"

// Chunk splits text into pieces of at most limit bytes, cutting only at
// line boundaries. A single line longer than limit becomes its own chunk
// unchanged. A limit of zero or less returns text as one chunk.
func Chunk(text string, limit int) []string {
	text = strings.TrimRight(text, "\n")
	if text == "" {
		return nil
	}
	if limit <= 0 || len(text) <= limit {
		return []string{text}
	}

	var (
		chunks  []string
		cur     strings.Builder
		started bool
	)
	for _, line := range strings.Split(text, "\n") {
		if started && cur.Len()+1+len(line) > limit {
			chunks = append(chunks, cur.String())
			cur.Reset()
			started = false
		}
		if started {
			cur.WriteByte('\n')
		}
		cur.WriteString(line)
		started = true
	}
	if started {
		chunks = append(chunks, cur.String())
	}
	return chunks
}
