package index

import (
	"math/rand"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiang66/ccls/pkg/types"
)

func TestReferenceCompare(t *testing.T) {
	base := Reference{Range: types.NewRange(1, 0, 3), ID: 2, Kind: types.KindFunc, Role: types.RoleCall}

	tests := []struct {
		name  string
		other Reference
		want  int
	}{
		{"equal", base, 0},
		{"later range", Reference{Range: types.NewRange(2, 0, 3), ID: 2, Kind: types.KindFunc, Role: types.RoleCall}, -1},
		{"smaller id", Reference{Range: types.NewRange(1, 0, 3), ID: 1, Kind: types.KindFunc, Role: types.RoleCall}, 1},
		{"greater kind", Reference{Range: types.NewRange(1, 0, 3), ID: 2, Kind: types.KindVar, Role: types.RoleCall}, -1},
		{"smaller role", Reference{Range: types.NewRange(1, 0, 3), ID: 2, Kind: types.KindFunc, Role: types.RoleReference}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, base.Compare(tt.other))
			assert.Equal(t, -tt.want, tt.other.Compare(base))
		})
	}
}

func randomUses(r *rand.Rand, n int) []Use {
	roles := []types.Role{types.RoleReference, types.RoleRead, types.RoleWrite, types.RoleCall}
	out := make([]Use, n)
	for i := range out {
		out[i] = NewUse(
			types.NewRange(r.Intn(5), r.Intn(3), 4),
			SymbolIdx{ID: AnyID(r.Intn(3)), Kind: types.KindFunc},
			roles[r.Intn(len(roles))],
			FileID(r.Intn(2)),
		)
	}
	return out
}

func TestSortUsesIdempotent(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for round := 0; round < 20; round++ {
		uses := randomUses(r, 50)

		once := SortUses(slices.Clone(uses))
		twice := SortUses(slices.Clone(once))
		assert.Equal(t, once, twice)
		assert.True(t, slices.IsSortedFunc(once, Use.Compare))
		for i := 1; i < len(once); i++ {
			assert.NotEqual(t, once[i-1], once[i], "no duplicates after sort")
		}
	}
}

func TestMergeUseRoles(t *testing.T) {
	rng := types.NewRange(3, 2, 5)
	scope := FuncID(0).Idx()
	uses := []Use{
		NewUse(rng, scope, types.RoleRead, 0),
		NewUse(types.NewRange(1, 0, 1), scope, types.RoleReference, 0),
		NewUse(rng, scope, types.RoleWrite, 0),
		NewUse(rng, scope, types.RoleRead, 0),
		NewUse(rng, scope, types.RoleRead, 1),
	}

	merged := MergeUseRoles(uses)
	require.Len(t, merged, 3)
	assert.Equal(t, types.NewRange(1, 0, 1), merged[0].Range)
	assert.Equal(t, types.RoleRead|types.RoleWrite, merged[1].Role)
	assert.Equal(t, FileID(0), merged[1].File)
	assert.Equal(t, types.RoleRead, merged[2].Role)
	assert.Equal(t, FileID(1), merged[2].File)

	again := MergeUseRoles(slices.Clone(merged))
	assert.Equal(t, merged, again)
}

func TestMergeUseRolesRandom(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for round := 0; round < 20; round++ {
		merged := MergeUseRoles(randomUses(r, 80))
		type key struct {
			rng  types.Range
			idx  SymbolIdx
			file FileID
		}
		seen := map[key]bool{}
		for _, u := range merged {
			k := key{u.Range, u.Idx(), u.File}
			assert.False(t, seen[k], "one entry per range/target/file")
			seen[k] = true
		}
		assert.Equal(t, merged, MergeUseRoles(slices.Clone(merged)))
	}
}

func TestMergeRefRoles(t *testing.T) {
	rng := types.NewRange(4, 2, 3)
	target := FuncID(1).Idx()
	refs := []SymbolRef{
		NewSymbolRef(rng, target, types.RoleCall),
		NewSymbolRef(rng, target, types.RoleCall),
		NewSymbolRef(rng, target, types.RoleImplicit),
	}
	merged := MergeRefRoles(refs)
	require.Len(t, merged, 1)
	assert.Equal(t, types.RoleCall|types.RoleImplicit, merged[0].Role)
}

func TestUniqueIDsKeepsOrder(t *testing.T) {
	ids := []TypeID{3, 1, 3, 2, 1}
	assert.Equal(t, []TypeID{3, 1, 2}, uniqueIDs(ids))
	assert.Equal(t, []TypeID{1, 2, 3}, sortIDs([]TypeID{3, 1, 3, 2, 1}))
}
