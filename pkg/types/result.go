package types

// SearchSource records which engine produced a SearchResult.
type SearchSource string

const (
	SourcePath     SearchSource = "path"
	SourceSemantic SearchSource = "semantic"
	SourceHybrid   SearchSource = "hybrid"
)

// QueryIntent is the routing decision made for a raw query string.
type QueryIntent int

const (
	IntentPathOnly QueryIntent = iota
	IntentSemanticOnly
	IntentHybrid
)

func (i QueryIntent) String() string {
	switch i {
	case IntentPathOnly:
		return "path_only"
	case IntentSemanticOnly:
		return "semantic_only"
	default:
		return "hybrid"
	}
}

// SearchResult is a single file hit.
//
// Score is higher-is-better for every source. Path hits score the number of
// distinct keywords matched; semantic hits score 1 - cosine distance.
type SearchResult struct {
	Score  float64
	Source SearchSource
	File   FileRecord

	// Distance is the best vector distance for semantic and hybrid hits.
	Distance float64

	MatchedKeywords []string // path search
	MatchedChunkIDs []int64  // semantic search
}
