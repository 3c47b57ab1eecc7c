// Package ingest turns uploaded documents into embedded, searchable chunks.
//
// A document is split into fixed-size overlapping chunks, embedded in small
// batches and persisted. A failed embedding batch skips only its own chunks;
// the rest of the document still lands.
package ingest

// Chunk is a bounded segment of a document with its starting offset in
// characters.
type Chunk struct {
	Text   string
	Offset int
}

// Split cuts text into chunks of at most size characters, each successive
// chunk starting size-overlap characters after the previous one. The final
// chunk may be shorter. Sizes and offsets count runes, never bytes, so a
// chunk boundary can never land inside a multibyte sequence. Empty input
// yields no chunks. Split is deterministic: the same input always produces
// the same chunks.
func Split(text string, size, overlap int) []Chunk {
	if text == "" || size <= 0 {
		return nil
	}
	stride := size - overlap
	if stride <= 0 {
		stride = size
	}

	runes := []rune(text)
	var chunks []Chunk
	for start := 0; start < len(runes); start += stride {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, Chunk{Text: string(runes[start:end]), Offset: start})
		if end == len(runes) {
			break
		}
	}
	return chunks
}
