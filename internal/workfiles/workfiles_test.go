package workfiles

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiang66/ccls/pkg/types"
)

func TestOpenUpdateClose(t *testing.T) {
	s := NewStore()
	wf := s.Open("/src/a.cc", "int a;", []string{"-DX"})
	assert.Zero(t, wf.Version)

	v, err := s.Update("/src/a.cc", "int a = 1;")
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	got, ok := s.Get("/src/a.cc")
	require.True(t, ok)
	assert.Equal(t, "int a = 1;", got.Content)
	got.Content = "mutated"
	again, _ := s.Get("/src/a.cc")
	assert.Equal(t, "int a = 1;", again.Content, "Get returns a copy")

	args, ok := s.Args("/src/a.cc")
	require.True(t, ok)
	assert.Equal(t, []string{"-DX"}, args)

	wf = s.Open("/src/a.cc", "int b;", nil)
	assert.Equal(t, 2, wf.Version, "reopening keeps counting")
	_, ok = s.Args("/src/a.cc")
	assert.False(t, ok)

	s.Close("/src/a.cc")
	_, ok = s.Get("/src/a.cc")
	assert.False(t, ok)

	_, err = s.Update("/src/a.cc", "")
	assert.ErrorIs(t, err, ErrNotOpen)
}

func TestSnapshotSorted(t *testing.T) {
	s := NewStore()
	s.Open("/b.h", "b", nil)
	s.Open("/a.cc", "a", nil)
	assert.Equal(t, []types.FileContents{{Path: "/a.cc", Content: "a"}, {Path: "/b.h", Content: "b"}}, s.Snapshot())
	assert.Equal(t, 2, s.Len())
}

func TestConcurrentUpdates(t *testing.T) {
	s := NewStore()
	s.Open("/a.cc", "", nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Update("/a.cc", "x")
			_ = s.Snapshot()
		}()
	}
	wg.Wait()
	got, _ := s.Get("/a.cc")
	assert.Equal(t, 50, got.Version)
}
