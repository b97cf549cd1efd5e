// Package chunker partitions discovered source files into fixed-size
// units of work.
package chunker

import (
	"fmt"

	"github.com/codesweep/codesweep/internal/core"
)

// Split partitions files into contiguous groups of at most maxChunkSize,
// preserving input order. Chunk IDs are assigned sequentially (chunk-1,
// chunk-2, ...) and are stable for a given (files, maxChunkSize) pair, so
// a resumed session's persisted chunk IDs still map to the same file
// groups if chunking were re-run.
func Split(files []string, maxChunkSize int) ([]core.Chunk, error) {
	if maxChunkSize <= 0 {
		return nil, core.ErrValidation(core.CodeInvalidChunkSize,
			fmt.Sprintf("chunk size must be positive, got %d", maxChunkSize))
	}

	chunks := make([]core.Chunk, 0, (len(files)+maxChunkSize-1)/maxChunkSize)
	for start := 0; start < len(files); start += maxChunkSize {
		end := start + maxChunkSize
		if end > len(files) {
			end = len(files)
		}
		group := make([]string, end-start)
		copy(group, files[start:end])
		chunks = append(chunks, core.NewChunk(len(chunks)+1, group))
	}

	return chunks, nil
}
