package searcher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiang66/ccls/internal/storage"
)

func sym(usr, kind, qual, short, role string, line int) *storage.Symbol {
	return &storage.Symbol{
		Usr: usr, Kind: kind, QualifiedName: qual, ShortName: short, Role: role,
		StartLine: line, StartCol: 0, EndLine: line, EndCol: len(short),
	}
}

func setupSearcher(t *testing.T) (*Searcher, storage.Storage, int64) {
	t.Helper()
	ctx := context.Background()
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	project := &storage.Project{RootPath: "/proj", IndexVersion: "17"}
	require.NoError(t, store.CreateProject(ctx, project))

	files := map[string][]*storage.Symbol{
		"/proj/parse.h": {
			sym("c:@F@parse#", "func", "parse", "parse", storage.RoleDeclaration, 0),
			sym("c:@N@io@S@Parser", "type", "io::Parser", "Parser", storage.RoleDeclaration, 1),
		},
		"/proj/parse.cc": {
			sym("c:@F@parse#", "func", "parse", "parse", storage.RoleDefinition, 2),
			sym("c:@F@parse#", "func", "parse", "parse", storage.RoleReference, 9),
			sym("c:@N@io@S@Parser", "type", "io::Parser", "Parser", storage.RoleDefinition, 4),
			sym("c:@F@parseArgs#", "func", "parseArgs", "parseArgs", storage.RoleDefinition, 6),
			sym("c:@N@io@F@parse#", "func", "io::parse", "parse", storage.RoleDefinition, 8),
			sym("c:@reparse_count", "var", "reparse_count", "reparse_count", storage.RoleDefinition, 10),
		},
	}
	for path, symbols := range files {
		file := &storage.File{ProjectID: project.ID, FilePath: path, ImportFile: "/proj/parse.cc", Language: "cpp"}
		require.NoError(t, store.UpsertFile(ctx, file))
		require.NoError(t, store.ReplaceSymbols(ctx, file.ID, symbols))
	}
	return NewSearcher(store), store, project.ID
}

func usrs(resp *SearchResponse) []string {
	out := make([]string, len(resp.Results))
	for i, r := range resp.Results {
		out[i] = r.Symbol.Usr
	}
	return out
}

func TestSearchRanking(t *testing.T) {
	s, _, projectID := setupSearcher(t)

	resp, err := s.Search(context.Background(), SearchRequest{ProjectID: projectID, Query: "parse"})
	require.NoError(t, err)
	assert.False(t, resp.CacheHit)
	assert.Equal(t, []string{
		"c:@F@parse#",
		"c:@N@io@F@parse#",
		"c:@F@parseArgs#",
		"c:@N@io@S@Parser",
		"c:@reparse_count",
	}, usrs(resp))
	assert.Equal(t, 5, resp.TotalResults)

	// one row per USR, at the definition
	top := resp.Results[0]
	assert.Equal(t, tierExact, top.Tier)
	assert.Equal(t, storage.RoleDefinition, top.Symbol.Role)
	assert.Equal(t, "/proj/parse.cc", top.Symbol.FilePath)
	assert.Equal(t, tierPrefix, resp.Results[2].Tier)
	assert.Equal(t, tierSubstring, resp.Results[3].Tier)

	resp, err = s.Search(context.Background(), SearchRequest{ProjectID: projectID, Query: "parser"})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "c:@N@io@S@Parser", resp.Results[0].Symbol.Usr)
	assert.Equal(t, tierExactFold, resp.Results[0].Tier)
}

func TestSearchFilters(t *testing.T) {
	s, _, projectID := setupSearcher(t)
	ctx := context.Background()

	resp, err := s.Search(ctx, SearchRequest{ProjectID: projectID, Query: "parse", Kinds: []string{"type", "var"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"c:@N@io@S@Parser", "c:@reparse_count"}, usrs(resp))

	resp, err = s.Search(ctx, SearchRequest{ProjectID: projectID, Query: "io::parse"})
	require.NoError(t, err)
	assert.Equal(t, []string{"c:@N@io@F@parse#", "c:@N@io@S@Parser"}, usrs(resp), "LIKE ignores ASCII case")

	resp, err = s.Search(ctx, SearchRequest{ProjectID: projectID, Query: "parse", Limit: 2})
	require.NoError(t, err)
	assert.Len(t, resp.Results, 2)
	assert.Equal(t, 5, resp.TotalResults)

	resp, err = s.Search(ctx, SearchRequest{ProjectID: projectID, Query: "nothing"})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
}

func TestSearchValidation(t *testing.T) {
	s, _, projectID := setupSearcher(t)
	ctx := context.Background()

	_, err := s.Search(ctx, SearchRequest{ProjectID: projectID, Query: "  "})
	assert.ErrorIs(t, err, ErrEmptyQuery)

	_, err = s.Search(ctx, SearchRequest{ProjectID: projectID, Query: "parse", Kinds: []string{"macro"}})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	req := SearchRequest{Query: " x ", Limit: 1000}
	require.NoError(t, validateRequest(&req))
	assert.Equal(t, "x", req.Query)
	assert.Equal(t, maxLimit, req.Limit)
	assert.Equal(t, time.Hour, req.CacheTTL)
}

func TestSearchCache(t *testing.T) {
	s, store, projectID := setupSearcher(t)
	ctx := context.Background()
	req := SearchRequest{ProjectID: projectID, Query: "parseArgs", UseCache: true}

	first, err := s.Search(ctx, req)
	require.NoError(t, err)
	assert.False(t, first.CacheHit)
	assert.Equal(t, 1, s.CacheLen())

	// cached copies are independent of the caller's
	first.Results[0].Symbol.Usr = "mutated"
	second, err := s.Search(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, []string{"c:@F@parseArgs#"}, usrs(second))

	// the cache masks index changes until invalidated
	file, err := store.GetFile(ctx, projectID, "/proj/parse.cc")
	require.NoError(t, err)
	require.NoError(t, store.ReplaceSymbols(ctx, file.ID, nil))
	stale, err := s.Search(ctx, req)
	require.NoError(t, err)
	assert.Len(t, stale.Results, 1)

	s.InvalidateCache(projectID)
	assert.Equal(t, 0, s.CacheLen())
	fresh, err := s.Search(ctx, req)
	require.NoError(t, err)
	assert.False(t, fresh.CacheHit)
	assert.Empty(t, fresh.Results)
}

func TestSearchCacheExpiry(t *testing.T) {
	s, _, projectID := setupSearcher(t)
	ctx := context.Background()
	req := SearchRequest{ProjectID: projectID, Query: "parse", UseCache: true, CacheTTL: time.Nanosecond}

	_, err := s.Search(ctx, req)
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	resp, err := s.Search(ctx, req)
	require.NoError(t, err)
	assert.False(t, resp.CacheHit)
}

func TestComputeQueryHash(t *testing.T) {
	a := SearchRequest{ProjectID: 1, Query: "f", Limit: 10, Kinds: []string{"func", "var"}}
	b := SearchRequest{ProjectID: 1, Query: "f", Limit: 10, Kinds: []string{"var", "func"}}
	assert.Equal(t, computeQueryHash(a), computeQueryHash(b), "kind order does not matter")

	b.ProjectID = 2
	assert.NotEqual(t, computeQueryHash(a), computeQueryHash(b))
}

func TestResize(t *testing.T) {
	s, _, projectID := setupSearcher(t)
	ctx := context.Background()
	for _, q := range []string{"parse", "Parser", "parseArgs"} {
		_, err := s.Search(ctx, SearchRequest{ProjectID: projectID, Query: q, UseCache: true})
		require.NoError(t, err)
	}
	assert.Equal(t, 3, s.CacheLen())
	assert.Equal(t, 2, s.Resize(1))
	assert.Equal(t, 1, s.CacheLen())
}
