// Package engine ties the indexing pipeline, the search coordinator and the
// filesystem watcher into one application state.
//
// The Engine owns the run flags shared by the scanner and the indexer, so at
// most one scan or indexing pass is in flight. A run started with
// StartIndexing (or RunIndexing for synchronous callers) walks through:
//
//  1. Start event, task row created as running
//  2. Scan event, scanner pass over the requested roots
//  3. Document embedding
//  4. Image and audio embedding, unless the private setting is on or the
//     analysis platform has no API key or lacks the capability
//  5. Finish event with the final remark ("done", "stopped", the privacy
//     notice or the missing API key message)
//
// Counters are flushed to the task row every FlushInterval and on every phase
// boundary. StopIndexing requests a stop that the pipeline honors at the next
// file or page.
//
// The Engine implements fswatch.Dispatcher: watcher events index, remove or
// rename records directly, and new directories are indexed through
// BackgroundIndex, which runs the same phases without a task row or events.
//
// Progress events fan out through Events. Publishing never blocks; slow
// subscribers miss events.
//
// Usage:
//
//	eng, err := engine.New(engine.Config{
//	    Store:     store,
//	    Settings:  settings,
//	    Embedding: manager,
//	    Counter:   counter,
//	    Watch:     true,
//	})
//	if err != nil {
//	    return err
//	}
//	if err := eng.Start(ctx); err != nil {
//	    return err
//	}
//	defer eng.Close()
//
//	task, err := eng.StartIndexing(ctx, []string{"/home/me/Documents"})
package engine
