package chunker

import (
	"bufio"
	"io"
	"strings"

	"docqa/internal/domain"
)

// DefaultGroupSize is the number of lines joined into one chunk.
const DefaultGroupSize = 3

const maxLineBytes = 16 << 20

// LineChunker groups consecutive non-empty lines into fixed-size chunks.
type LineChunker struct {
	groupSize int
}

// NewLineChunker returns a chunker joining groupSize lines per chunk.
// Non-positive sizes fall back to DefaultGroupSize.
func NewLineChunker(groupSize int) *LineChunker {
	if groupSize <= 0 {
		groupSize = DefaultGroupSize
	}
	return &LineChunker{groupSize: groupSize}
}

// GroupSize reports the configured lines per chunk.
func (c *LineChunker) GroupSize() int { return c.groupSize }

// Chunk partitions lines into ordered chunks. Chunk i holds lines
// [i*groupSize, (i+1)*groupSize) joined by a single space.
func (c *LineChunker) Chunk(lines []string) []domain.Chunk {
	texts := GroupLines(lines, c.groupSize)
	if len(texts) == 0 {
		return nil
	}
	chunks := make([]domain.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = domain.Chunk{Index: i, Text: text}
	}
	return chunks
}

// GroupLines joins contiguous windows of groupSize lines with a single space.
// The last window may be shorter. Lines are expected to be trimmed and
// non-empty already; see SplitLines. A groupSize below 1 is treated as 1.
func GroupLines(lines []string, groupSize int) []string {
	if len(lines) == 0 {
		return nil
	}
	if groupSize < 1 {
		groupSize = 1
	}
	out := make([]string, 0, (len(lines)+groupSize-1)/groupSize)
	for i := 0; i < len(lines); i += groupSize {
		end := min(i+groupSize, len(lines))
		out = append(out, strings.Join(lines[i:end], " "))
	}
	return out
}

// SplitLines reads r line by line, trims surrounding whitespace and drops
// blank lines.
func SplitLines(r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	var lines []string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}
