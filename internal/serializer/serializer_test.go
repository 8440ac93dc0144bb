package serializer

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiang66/ccls/internal/index"
	"github.com/xiang66/ccls/pkg/types"
)

func sampleFile(t *testing.T) *index.IndexFile {
	t.Helper()
	f := index.NewIndexFile("/src/a.cc", "struct S {}; void f() { S s; }")
	f.Args = []string{"-std=c++17"}
	f.Language = types.LanguageCpp
	f.ContentHash = 42

	sid, err := f.ToTypeID("c:@S@S")
	require.NoError(t, err)
	fid, err := f.ToFuncID("c:@F@f#")
	require.NoError(t, err)
	vid, err := f.ToVarID("c:a.cc@20@F@f#@s")
	require.NoError(t, err)

	spell := index.NewUse(types.NewRange(0, 7, 8), f.ID.Idx(), types.RoleDefinition, f.ID)
	f.Type(sid).Def.Spell = &spell
	f.Type(sid).Def.DetailedName = "S"
	f.Type(sid).Def.ShortNameSize = 1
	f.Type(sid).Instances = []index.VarID{vid}
	f.Type(sid).Uses = []index.Use{index.NewUse(types.NewRange(0, 24, 25), fid.Idx(), types.RoleReference, f.ID)}
	f.Func(fid).Def.DetailedName = "void f()"
	f.Func(fid).Def.QualNameOffset = 5
	f.Func(fid).Def.ShortNameOffset = 5
	f.Func(fid).Def.ShortNameSize = 1
	f.Func(fid).Def.Vars = []index.VarID{vid}
	f.Var(vid).Def.Type = &sid
	f.SkippedByPreprocessor = []types.Range{types.NewRange(3, 0, 6)}
	f.Includes = []index.IndexInclude{{Line: 0, ResolvedPath: "/src/a.h"}}
	f.Dependencies = []string{"/src/a.h"}
	f.Diagnostics = []types.Diagnostic{{File: f.Path, Message: "unused"}}
	f.Finalize()
	return f
}

func TestRoundTrip(t *testing.T) {
	for _, format := range []Format{FormatJSON, FormatMsgPack} {
		t.Run(format.String(), func(t *testing.T) {
			orig := sampleFile(t)
			data, err := Serialize(format, orig)
			require.NoError(t, err)

			got, err := Deserialize(format, orig.Path, data, index.MajorVersion)
			require.NoError(t, err)

			assert.Empty(t, got.Diagnostics, "diagnostics are not persisted")
			assert.Empty(t, got.FileContents, "contents are not persisted")

			want, err := orig.ToString()
			require.NoError(t, err)
			have, err := got.ToString()
			require.NoError(t, err)
			assert.JSONEq(t, want, have)

			// The id cache is usable again
			fid, ok := got.IDCache.FuncID("c:@F@f#")
			require.True(t, ok)
			assert.Equal(t, "f", got.Func(fid).Def.Name(false))
		})
	}
}

func TestVersionMismatch(t *testing.T) {
	f := sampleFile(t)
	for _, format := range []Format{FormatJSON, FormatMsgPack} {
		data, err := Serialize(format, f)
		require.NoError(t, err)
		_, err = Deserialize(format, f.Path, data, index.MajorVersion+1)
		assert.ErrorIs(t, err, ErrVersionMismatch, format.String())
	}
}

func TestJSONHeader(t *testing.T) {
	data, err := Serialize(FormatJSON, sampleFile(t))
	require.NoError(t, err)
	var header struct {
		Major int `json:"major"`
	}
	require.NoError(t, json.Unmarshal(data, &header))
	assert.Equal(t, index.MajorVersion, header.Major)
}

func TestDeserializeCorrupt(t *testing.T) {
	_, err := Deserialize(FormatJSON, "/x.cc", []byte("{not json"), index.MajorVersion)
	assert.Error(t, err)
	_, err = Deserialize(FormatMsgPack, "/x.cc", nil, index.MajorVersion)
	assert.Error(t, err)

	// Two entities claiming the same usr break the bijection
	f := index.NewIndexFile("/x.cc", "")
	_, _ = f.ToFuncID("c:@F@a#")
	_, _ = f.ToFuncID("c:@F@b#")
	f.Funcs[1].Usr = "c:@F@a#"
	data, err := Serialize(FormatJSON, f)
	require.NoError(t, err)
	_, err = Deserialize(FormatJSON, "/x.cc", data, index.MajorVersion)
	assert.ErrorIs(t, err, index.ErrCorruptIndex)
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"json", FormatJSON, false},
		{"JSON", FormatJSON, false},
		{"msgpack", FormatMsgPack, false},
		{"", FormatMsgPack, false},
		{"xml", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrUnknownFormat)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
	assert.Equal(t, ".mpack", FormatMsgPack.Ext())
	assert.Equal(t, ".json", FormatJSON.Ext())
}
