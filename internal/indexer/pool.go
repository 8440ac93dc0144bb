package indexer

import (
	"context"
	"errors"
	"io"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/xiang66/ccls/internal/consumer"
	"github.com/xiang66/ccls/internal/index"
	"github.com/xiang66/ccls/pkg/types"
)

var (
	// ErrStaleResult is returned when a newer request for the same path was
	// submitted while this one was being parsed. The result is discarded.
	ErrStaleResult = errors.New("superseded by a newer request")
	// ErrPoolClosed is returned for requests made after Close
	ErrPoolClosed = errors.New("indexer pool closed")
)

type request struct {
	ctx      context.Context
	path     string
	args     []string
	contents []types.FileContents
	seq      uint64
	reply    chan result
}

type result struct {
	files []*index.IndexFile
	err   error
}

// Pool runs one goroutine per Indexer. Requests are handed to whichever
// worker is free over a shared channel. Requests for the same path run one
// after another.
type Pool struct {
	shared   *consumer.SharedState
	indexers []Indexer
	reqs     chan request
	quit     chan struct{}
	g        *errgroup.Group

	mu     sync.Mutex
	seq    uint64
	latest map[string]uint64
	gates  map[string]*pathGate
	closed bool
}

// pathGate admits one request per path at a time
type pathGate struct {
	ch   chan struct{}
	refs int
}

// NewPool starts a worker goroutine for each indexer
func NewPool(shared *consumer.SharedState, indexers ...Indexer) *Pool {
	p := &Pool{
		shared:   shared,
		indexers: indexers,
		reqs:     make(chan request),
		quit:     make(chan struct{}),
		g:        &errgroup.Group{},
		latest:   make(map[string]uint64),
		gates:    make(map[string]*pathGate),
	}
	for _, ix := range indexers {
		p.g.Go(func() error {
			for {
				select {
				case req := <-p.reqs:
					files, err := ix.Index(req.ctx, p.shared, req.path, req.args, req.contents)
					req.reply <- result{files: files, err: err}
				case <-p.quit:
					if c, ok := ix.(io.Closer); ok {
						return c.Close()
					}
					return nil
				}
			}
		})
	}
	return p
}

// Shared returns the claim set shared by every worker
func (p *Pool) Shared() *consumer.SharedState {
	return p.shared
}

// Index parses path on the next free worker and waits for the result
func (p *Pool) Index(ctx context.Context, path string, args []string, contents []types.FileContents) ([]*index.IndexFile, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	p.seq++
	seq := p.seq
	p.latest[path] = seq
	p.mu.Unlock()

	done, err := p.acquire(ctx, path)
	if err != nil {
		return nil, err
	}
	defer done()

	// Superseded while waiting for the previous parse of path
	if p.stale(path, seq) {
		return nil, ErrStaleResult
	}

	req := request{
		ctx:      ctx,
		path:     path,
		args:     args,
		contents: contents,
		seq:      seq,
		reply:    make(chan result, 1),
	}
	select {
	case p.reqs <- req:
	case <-p.quit:
		return nil, ErrPoolClosed
	case <-ctx.Done():
		return nil, types.ErrAborted
	}

	res := <-req.reply
	if res.err != nil {
		return nil, res.err
	}

	if p.stale(path, seq) {
		// The newer parse of path starts after this returns and claims the
		// headers released here
		for _, f := range res.files {
			if f.Path != path {
				p.shared.Release(f.Path)
			}
		}
		return nil, ErrStaleResult
	}
	return res.files, nil
}

// Forget drops the per-file state workers keep for path, such as a cached
// translation unit. Workers without such state are skipped.
func (p *Pool) Forget(path string) {
	for _, ix := range p.indexers {
		if f, ok := ix.(interface{ Forget(string) }); ok {
			f.Forget(path)
		}
	}
	p.mu.Lock()
	delete(p.latest, path)
	p.mu.Unlock()
}

func (p *Pool) stale(path string, seq uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latest[path] != seq
}

// acquire waits until no other request for path is in flight. The returned
// func hands the path to the next waiter.
func (p *Pool) acquire(ctx context.Context, path string) (func(), error) {
	p.mu.Lock()
	g, ok := p.gates[path]
	if !ok {
		g = &pathGate{ch: make(chan struct{}, 1)}
		p.gates[path] = g
	}
	g.refs++
	p.mu.Unlock()

	unref := func() {
		p.mu.Lock()
		g.refs--
		if g.refs == 0 {
			delete(p.gates, path)
		}
		p.mu.Unlock()
	}

	select {
	case g.ch <- struct{}{}:
		return func() {
			<-g.ch
			unref()
		}, nil
	case <-p.quit:
		unref()
		return nil, ErrPoolClosed
	case <-ctx.Done():
		unref()
		return nil, types.ErrAborted
	}
}

// Close stops the workers once in-flight requests are done. Requests still
// waiting for a worker fail with ErrPoolClosed.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	close(p.quit)
	return p.g.Wait()
}
