// Package searcher implements workspace symbol search over the persistent
// index.
//
// A query matches definitions and declarations whose qualified or short
// name contains it. Each USR is reported once, at its definition when one
// is indexed. Results are ordered by match quality:
//
//  1. short name equals the query
//  2. short name equals the query ignoring case
//  3. short name starts with the query
//  4. qualified name ends with ::query
//  5. any other substring match
//
// Ties go to the shorter qualified name.
//
// # Basic Usage
//
//	s := searcher.NewSearcher(store)
//
//	resp, err := s.Search(ctx, searcher.SearchRequest{
//	    ProjectID: project.ID,
//	    Query:     "parse",
//	    Kinds:     []string{"func"},
//	    Limit:     10,
//	    UseCache:  true,
//	})
//
// # Caching
//
// Responses are kept in an LRU keyed by an xxh3 hash of the query, project,
// kinds and limit. Entries expire after CacheTTL. Callers must call
// InvalidateCache after indexing changes the project.
package searcher
