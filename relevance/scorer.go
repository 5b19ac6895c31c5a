package relevance

// Scorer accumulates per-entry statistics while a match decodes postings.
// Implementations are not safe for concurrent use.
type Scorer interface {
	// Add records the encoded entry and returns its entry id.
	Add(encoded int64) int64
	// Process records buf[:n] and rewrites it in place to entry ids.
	Process(buf []int64, n int)
	// Remove forgets the entry recorded by the last Add.
	Remove()
	// Score adds the weighted score of each match to scores and drops the
	// entries recorded since the previous Score.
	Score(matches []int64, scores []float32, boost float32)
	// IsStored reports whether frequencies are kept and Process must be used
	// instead of discarding them.
	IsStored() bool
	// Close releases the recorded state.
	Close()
}

// DocumentLengths provides the statistics used for length normalization.
type DocumentLengths interface {
	// Length returns the number of terms in the document, or 0 if unknown.
	Length(entryID int64) int
	// AverageLength returns the mean document length.
	AverageLength() float64
	// DocumentCount returns the number of indexed documents.
	DocumentCount() int64
}
