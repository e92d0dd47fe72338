package searcher

import (
	"strings"

	"github.com/dshills/filesift/pkg/types"
)

// Words that suggest a query describes content rather than naming a file
var semanticHints = []string{"about", "related", "that", "which", "where", "notes", "document"}

// DetectIntent decides which engines a query should go to. Anything that looks
// like a path, a glob or a file name, and short queries, go to path search
// only; longer descriptive queries go to semantic search.
func DetectIntent(query string) types.QueryIntent {
	q := strings.TrimSpace(query)

	if strings.ContainsAny(q, `\/`) {
		return types.IntentPathOnly
	}
	if strings.ContainsAny(q, "*.") {
		return types.IntentPathOnly
	}
	if len(strings.Fields(q)) <= 2 {
		return types.IntentPathOnly
	}
	for _, hint := range semanticHints {
		if strings.Contains(q, hint) {
			return types.IntentHybrid
		}
	}
	if len(q) > 20 {
		return types.IntentSemanticOnly
	}
	return types.IntentHybrid
}
