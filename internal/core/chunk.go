package core

import "fmt"

// Chunk is a fixed-size group of source files treated as one unit of work.
// Chunks are created once during the chunking phase and are immutable
// afterwards; the session's queues reference them by ID.
type Chunk struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Index     int      `json:"index"`
	Files     []string `json:"files"`
	FileCount int      `json:"file_count"`
}

// NewChunk builds a chunk for the given 1-based index.
func NewChunk(index int, files []string) Chunk {
	return Chunk{
		ID:        fmt.Sprintf("chunk-%d", index),
		Name:      fmt.Sprintf("Chunk %d", index),
		Index:     index,
		Files:     files,
		FileCount: len(files),
	}
}
