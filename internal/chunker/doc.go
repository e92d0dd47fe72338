// Package chunker prepares extracted text for embedding.
//
// CollapseNewlines normalizes line endings and squeezes blank lines. A
// Splitter then cuts the text into chunks bounded by a token count, measured
// with the same tokenizer the embedding model uses.
//
// # Basic Usage
//
//	// mgr is an *embedder.Manager; it counts with the active model's tokenizer
//	s := chunker.NewSplitter(mgr, chunker.DefaultMaxTokens, chunker.DefaultOverlap)
//	for i, chunk := range s.Split(chunker.CollapseNewlines(content)) {
//	    fmt.Printf("chunk %d: %d tokens\n", i, mgr.Count(chunk))
//	}
//
// # Splitting Strategy
//
// Text is broken at the coarsest level where every piece fits the limit:
//   - lines
//   - words within an oversized line
//   - rune runs within an oversized word
//
// Pieces are packed greedily into chunks. Each new chunk starts with the
// trailing pieces of the previous one that fit within the overlap budget.
// Splitting is deterministic: the same text always yields the same chunks.
package chunker
