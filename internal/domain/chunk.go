package domain

// Chunk is a bounded substring of a document prepared for independent retrieval.
// Chunks are immutable once produced; a document's chunk set is replaced as a
// whole on re-embedding, never patched.
type Chunk struct {
	Text string
	Meta ChunkMeta
}

// ChunkMeta carries the positional and structural metadata of a chunk.
type ChunkMeta struct {
	Index         int    // ordinal within the document, 0-based
	Size          int    // length of the trimmed chunk text
	TotalDocSize  int    // length of the full source text
	StartChar     int    // offset of the chunk start in the source text
	EndChar       int    // offset one past the chunk end in the source text
	SectionHeader string // heading within the first 200 chars, empty if none
	HasSection    bool
}
