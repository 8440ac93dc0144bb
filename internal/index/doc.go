// Package index holds the per-file symbol index and the rules for building it.
//
// One parse of a translation unit touches the main file and every header it
// includes. The Builder splits the parser's event stream into one IndexFile
// per physical file so each file can be cached, diffed and replaced on its
// own.
//
// # Identity
//
// Inside an IndexFile, types, functions and variables live in three arrays
// and are addressed by typed ids:
//
//	tid, _ := file.ToTypeID("c:@S@Foo")   // allocate or look up
//	t := file.Type(tid)                   // resolve
//	usr, _ := file.IDCache.TypeUsr(tid)   // back to the USR
//
// Ids only mean something within the file that minted them. The USR is the
// identity that survives across files and parses, and every entity carries
// it. Relationship edges whose target is not declared in the same file are
// also recorded in ExternalRefs by USR so they can be rewired later.
//
// Heterogeneous references use SymbolIdx, an id with its kind erased.
// Widening is explicit (id.Erase) and narrowing is checked (Assume).
//
// # References
//
// A SymbolRef names the referenced entity; a Use names the lexically
// enclosing entity and the file of the occurrence. After Finalize every
// reference list is sorted and deduplicated, and entries that differ only
// in role are merged with their roles OR-ed together.
//
// # Building
//
//	b := index.NewBuilder(router, "/src/main.cc", args)
//	b.ApplyResult(result)
//	files, stats := b.Finish()
//
// Events are applied in emission order. Malformed events are counted in
// Stats and skipped.
package index
