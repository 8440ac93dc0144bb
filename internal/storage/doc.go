// Package storage provides SQLite-based persistence for the symbol index.
//
// The cache directory holds the full IndexFile of every file. The database
// holds what the cache cannot answer on its own: which files exist, which
// translation unit indexed each of them, and where every USR is defined,
// declared and used across the whole project.
//
// # Database Schema
//
// Tables:
//   - projects: indexed source trees
//   - index_files: one row per indexed file (import file, args, content hash)
//   - symbols: one row per occurrence of a USR (definition, declaration, use)
//   - includes: #include edges, used to find the translation units of a header
//
// # Basic Usage
//
//	db, err := storage.NewSQLiteStorage("~/.ccindex/project.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	tx, err := db.BeginTx(ctx)
//	if err != nil {
//	    return err
//	}
//	defer tx.Rollback()
//
//	if err := tx.UpsertFile(ctx, file); err != nil {
//	    return err
//	}
//	if err := tx.ReplaceSymbols(ctx, file.ID, storage.SymbolsFromIndex(indexFile)); err != nil {
//	    return err
//	}
//	return tx.Commit()
//
// # Build Modes
//
// The default build uses modernc.org/sqlite (pure Go). Building with the
// cgo_sqlite tag switches to github.com/mattn/go-sqlite3.
package storage
