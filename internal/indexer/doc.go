// Package indexer embeds registry records that are waiting to be indexed.
//
// Indexing runs per file category through a Template. A template pages through
// the category's Waiting records in id order, 1000 at a time, and for each one:
//
//  1. Deletes the record when its file no longer exists
//  2. Loads text through the category's ContentSource (documents through the
//     extractor registry, images and audio through a model platform)
//  3. Stores the collapsed text and refreshed metadata on the record
//  4. Replaces the metadata embedding and the content chunk embeddings
//
// Each record carries two status machines, one for content and one for
// metadata, so a failed metadata embedding does not prevent content from
// being searchable.
//
// # Error Handling
//
// Per-file problems (unreadable files, failed chunk embeddings) are recorded
// on the record and in the run Summary and never stop the loop. Errors from
// the embedding session itself, such as a model that fails to load, end the
// run: the current record is put back to Waiting and the error is returned.
//
// # Progress
//
// Summary keeps atomic counters per category. The engine copies its totals
// into the persisted IndexingTask while a run is in flight.
//
//	ix, _ := indexer.New(indexer.Config{Store: store, Embedder: mgr, Counter: mgr})
//	docs := ix.NewTemplate(types.CategoryDocument, indexer.DocumentSource{Registry: reg}, emit)
//	if err := docs.Process(ctx, task.ID); err != nil {
//	    // session failure
//	}
package indexer
