package consumer

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeebo/xxh3"

	"github.com/xiang66/ccls/pkg/types"
)

func TestSharedStateClaimOnce(t *testing.T) {
	s := NewSharedState()
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Claim("/src/common.h") {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
	assert.True(t, s.Claimed("/src/common.h"))

	s.Release("/src/common.h")
	assert.False(t, s.Claimed("/src/common.h"))
	assert.True(t, s.Claim("/src/common.h"))

	s.Claim("/src/other.h")
	assert.Equal(t, 2, s.Len())
	s.Reset()
	assert.Zero(t, s.Len())
}

func TestFileConsumerRouting(t *testing.T) {
	shared := NewSharedState()
	require.True(t, shared.Claim("/src/taken.h"))

	contents := []types.FileContents{
		{Path: "/src/main.cc", Content: "int main() {}"},
		{Path: "/src/mine.h", Content: "void f();"},
	}
	c := NewFileConsumer(shared, "/src/main.cc", contents)

	main := c.File("/src/main.cc")
	require.NotNil(t, main)
	assert.Equal(t, "int main() {}", main.FileContents)
	assert.Equal(t, xxh3.HashString("int main() {}"), main.ContentHash)
	assert.Same(t, main, c.File("/src/main.cc"))

	assert.Nil(t, c.File("/src/taken.h"))
	assert.Nil(t, c.File("/src/taken.h"), "a declined file stays declined for the parse")

	mine := c.File("/src/mine.h")
	require.NotNil(t, mine)
	assert.Equal(t, []string{"/src/mine.h"}, c.Claimed())
	assert.Nil(t, c.File(""))

	// A second parse including the same header does not get it
	other := NewFileConsumer(shared, "/src/other.cc", nil)
	assert.Nil(t, other.File("/src/mine.h"))

	c.ReleaseAll()
	assert.False(t, shared.Claimed("/src/mine.h"))
	assert.True(t, shared.Claimed("/src/taken.h"))
}

func TestFileConsumerMainFileAlwaysOwned(t *testing.T) {
	shared := NewSharedState()
	require.True(t, shared.Claim("/src/main.cc"))
	c := NewFileConsumer(shared, "/src/main.cc", nil)
	assert.NotNil(t, c.File("/src/main.cc"))
	assert.Empty(t, c.Claimed())
}

func TestFileConsumerWithoutSharedState(t *testing.T) {
	c := NewFileConsumer(nil, "/src/main.cc", nil)
	assert.NotNil(t, c.File("/src/main.cc"))
	assert.NotNil(t, c.File("/src/a.h"))
	assert.NotNil(t, c.File("/src/b.h"))
	assert.Equal(t, []string{"/src/a.h", "/src/b.h"}, c.Claimed())
	c.ReleaseAll()
	assert.Empty(t, c.Claimed())
}
