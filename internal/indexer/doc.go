// Package indexer turns translation units into per-file indexes and keeps
// them persisted.
//
// # Indexers
//
// An Indexer parses one main file and returns an IndexFile for the main file
// and for every included header the parse managed to claim through
// consumer.SharedState. Worker is the production Indexer: it wraps a
// frontend and keeps a tu.Unit per main file so later requests reparse
// instead of starting over. TestIndexer returns canned results.
//
//	shared := consumer.NewSharedState()
//	w := indexer.NewWorker(frontend.NewTreeSitter(nil))
//	files, err := w.Index(ctx, shared, "/src/main.cc", args, snapshot)
//
// A crashed reparse returns ErrParseCrashed. The last good index of the
// file stays in the cache and in the database.
//
// # Pool
//
// Pool runs one goroutine per Indexer and hands requests to whichever is
// free. Every request gets a sequence number; when a newer request for the
// same path was submitted while an older one was parsing, the older result
// is dropped with ErrStaleResult.
//
// # Pipeline
//
// Pipeline.IndexProject walks a source tree, skips translation units whose
// content and dependencies hash the same as their cached version, parses
// the rest on the pool and writes each batch in one transaction:
//
//	stats, err := p.IndexProject(ctx, "/src/project", nil)
//	for _, u := range stats.Updates {
//	    log.Println(u)
//	}
//
// Pipeline.IndexFile reindexes a single file with editor contents. A header
// is reindexed through the translation unit that imported it.
package indexer
