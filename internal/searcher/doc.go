// Package searcher answers file queries by path keywords, by embedding
// similarity, or by both.
//
// # Engines
//
// PathEngine keeps every indexed path in memory. A query is split on
// whitespace and all keywords are matched at once with a case-insensitive
// Aho-Corasick matcher (leftmost-longest, non-overlapping). A path scores
// the number of distinct keywords it contains. The cache is loaded with
// Build, kept current by StartRefresher, and trimmed immediately by Remove
// when the watcher sees a deletion or rename.
//
// SemanticEngine embeds the query and asks the store for the nearest content
// chunks and metadata sentences within a cosine distance of 0.7. Hits are
// grouped by file keeping the smallest distance; a file scores 1 - distance.
//
// # Routing
//
// With SearchModeAuto the query is routed by DetectIntent:
//
//   - queries containing a path separator, '*' or '.', and queries of at most
//     two words, go to path search only
//   - queries mentioning about, related, that, which, where, notes or
//     document run both engines
//   - other queries longer than 20 bytes go to semantic search only
//   - everything else runs both
//
// Hybrid results are combined by Fuse:
//
//	both engines:   0.6*path + 0.4*semantic
//	path only:      path
//	semantic only:  0.4*semantic
//
// # Basic Usage
//
//	paths := searcher.NewPathEngine(store, nil)
//	if err := paths.Build(ctx); err != nil {
//	    return err
//	}
//	paths.StartRefresher(ctx, searcher.DefaultRefreshInterval)
//
//	semantic := searcher.NewSemanticEngine(searcher.SemanticConfig{
//	    Store:    store,
//	    Embedder: embedder.NewCachedEmbedder(manager, 1000),
//	})
//	s := searcher.NewSearcher(store, paths, semantic, nil)
//
//	resp, err := s.Search(ctx, searcher.SearchRequest{Query: "notes about the budget"})
//
// Engine failures never surface from Search; they are logged and the
// affected engine contributes no results.
package searcher
