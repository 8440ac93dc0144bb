package searcher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/zeebo/xxh3"

	"github.com/xiang66/ccls/internal/storage"
)

var (
	// ErrInvalidRequest wraps every request validation failure
	ErrInvalidRequest = errors.New("invalid search request")
	// ErrEmptyQuery is returned for a blank search query
	ErrEmptyQuery = errors.New("query cannot be empty")
)

const (
	defaultLimit = 20
	maxLimit     = 100
	// candidates fetched per requested result; duplicates by USR are folded
	candidateFactor = 4
	cacheSize       = 1000
)

// Match tiers, best first
const (
	tierExact = iota
	tierExactFold
	tierPrefix
	tierQualifiedSuffix
	tierSubstring
)

// SearchRequest contains parameters for a symbol search
type SearchRequest struct {
	ProjectID int64
	Query     string
	Kinds     []string // type, func or var; empty matches all
	Limit     int
	UseCache  bool
	CacheTTL  time.Duration
}

// Result is one symbol, located at its definition when one is indexed and
// at its first declaration otherwise
type Result struct {
	Symbol *storage.Symbol
	Tier   int
}

// SearchResponse contains search results and metadata
type SearchResponse struct {
	Results      []Result
	TotalResults int
	Duration     time.Duration
	CacheHit     bool
}

type cacheEntry struct {
	response  *SearchResponse
	expiresAt time.Time
}

// Searcher answers workspace symbol queries over the persistent index
type Searcher struct {
	storage storage.Storage
	cache   *lru.Cache[uint64, *cacheEntry]
	cacheMu sync.RWMutex
}

// NewSearcher creates a new Searcher instance
func NewSearcher(store storage.Storage) *Searcher {
	cache, err := lru.New[uint64, *cacheEntry](cacheSize)
	if err != nil {
		panic(fmt.Sprintf("failed to create LRU cache: %v", err))
	}
	return &Searcher{storage: store, cache: cache}
}

// Search finds definitions and declarations whose name contains the query
func (s *Searcher) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	startTime := time.Now()

	if err := validateRequest(&req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	if req.UseCache {
		if cached := s.checkCache(req); cached != nil {
			cached.CacheHit = true
			cached.Duration = time.Since(startTime)
			return cached, nil
		}
	}

	symbols, err := s.storage.SearchSymbols(ctx, req.ProjectID, req.Query, req.Limit*candidateFactor)
	if err != nil {
		return nil, fmt.Errorf("symbol search failed: %w", err)
	}

	results := rank(fold(filterKinds(symbols, req.Kinds)), req.Query)
	response := &SearchResponse{TotalResults: len(results)}
	if len(results) > req.Limit {
		results = results[:req.Limit]
	}
	response.Results = results
	response.Duration = time.Since(startTime)

	if req.UseCache && len(results) > 0 {
		s.storeInCache(req, response)
	}
	return response, nil
}

func validateRequest(req *SearchRequest) error {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return ErrEmptyQuery
	}
	if req.Limit <= 0 {
		req.Limit = defaultLimit
	}
	if req.Limit > maxLimit {
		req.Limit = maxLimit
	}
	for _, k := range req.Kinds {
		switch k {
		case "type", "func", "var":
		default:
			return fmt.Errorf("unknown symbol kind %q", k)
		}
	}
	if req.CacheTTL == 0 {
		req.CacheTTL = time.Hour
	}
	return nil
}

func filterKinds(symbols []*storage.Symbol, kinds []string) []*storage.Symbol {
	if len(kinds) == 0 {
		return symbols
	}
	out := symbols[:0:0]
	for _, sym := range symbols {
		for _, k := range kinds {
			if sym.Kind == k {
				out = append(out, sym)
				break
			}
		}
	}
	return out
}

// fold keeps one occurrence per USR, preferring the definition
func fold(symbols []*storage.Symbol) []*storage.Symbol {
	best := make(map[string]*storage.Symbol, len(symbols))
	var order []string
	for _, sym := range symbols {
		cur, ok := best[sym.Usr]
		if !ok {
			order = append(order, sym.Usr)
			best[sym.Usr] = sym
			continue
		}
		if cur.Role != storage.RoleDefinition && sym.Role == storage.RoleDefinition {
			best[sym.Usr] = sym
		}
	}
	out := make([]*storage.Symbol, 0, len(order))
	for _, usr := range order {
		out = append(out, best[usr])
	}
	return out
}

func matchTier(sym *storage.Symbol, query string) int {
	switch {
	case sym.ShortName == query:
		return tierExact
	case strings.EqualFold(sym.ShortName, query):
		return tierExactFold
	case strings.HasPrefix(sym.ShortName, query):
		return tierPrefix
	case strings.HasSuffix(sym.QualifiedName, "::"+query):
		return tierQualifiedSuffix
	default:
		return tierSubstring
	}
}

func rank(symbols []*storage.Symbol, query string) []Result {
	results := make([]Result, len(symbols))
	for i, sym := range symbols {
		results[i] = Result{Symbol: sym, Tier: matchTier(sym, query)}
	}
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Tier != b.Tier {
			return a.Tier < b.Tier
		}
		if len(a.Symbol.QualifiedName) != len(b.Symbol.QualifiedName) {
			return len(a.Symbol.QualifiedName) < len(b.Symbol.QualifiedName)
		}
		return a.Symbol.QualifiedName < b.Symbol.QualifiedName
	})
	return results
}

func (s *Searcher) checkCache(req SearchRequest) *SearchResponse {
	hash := computeQueryHash(req)
	now := time.Now()

	s.cacheMu.RLock()
	entry, found := s.cache.Get(hash)
	if !found {
		s.cacheMu.RUnlock()
		return nil
	}
	if now.After(entry.expiresAt) {
		s.cacheMu.RUnlock()
		s.cacheMu.Lock()
		s.cache.Remove(hash)
		s.cacheMu.Unlock()
		return nil
	}
	response := copySearchResponse(entry.response)
	s.cacheMu.RUnlock()
	return response
}

func (s *Searcher) storeInCache(req SearchRequest, response *SearchResponse) {
	entry := &cacheEntry{
		response:  copySearchResponse(response),
		expiresAt: time.Now().Add(req.CacheTTL),
	}
	s.cacheMu.Lock()
	s.cache.Add(computeQueryHash(req), entry)
	s.cacheMu.Unlock()
}

func copySearchResponse(src *SearchResponse) *SearchResponse {
	dst := &SearchResponse{
		TotalResults: src.TotalResults,
		Duration:     src.Duration,
		CacheHit:     src.CacheHit,
		Results:      make([]Result, len(src.Results)),
	}
	for i, r := range src.Results {
		sym := *r.Symbol
		dst.Results[i] = Result{Symbol: &sym, Tier: r.Tier}
	}
	return dst
}

func computeQueryHash(req SearchRequest) uint64 {
	kinds := append([]string(nil), req.Kinds...)
	sort.Strings(kinds)

	var data strings.Builder
	data.WriteString(req.Query)
	data.WriteString("|")
	data.WriteString(strconv.FormatInt(req.ProjectID, 10))
	data.WriteString("|")
	data.WriteString(strconv.Itoa(req.Limit))
	data.WriteString("|")
	data.WriteString(strings.Join(kinds, ","))
	return xxh3.HashString(data.String())
}

// InvalidateCache drops cached queries after the index of a project changed.
// The LRU cannot filter by project so every entry goes.
func (s *Searcher) InvalidateCache(projectID int64) {
	s.cacheMu.Lock()
	s.cache.Purge()
	s.cacheMu.Unlock()
}

// Resize changes the number of cached queries, evicting the oldest
func (s *Searcher) Resize(maxEntries int) int {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	return s.cache.Resize(maxEntries)
}

// CacheLen reports the number of cached queries
func (s *Searcher) CacheLen() int {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	return s.cache.Len()
}
