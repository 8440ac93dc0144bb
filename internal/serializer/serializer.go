// Package serializer converts IndexFiles to and from their on-disk cache
// forms.
//
// Two formats exist. JSON is readable and is what the dump command prints.
// MessagePack is compact and is the default cache format. Both carry the
// index major version in a header; a reader that finds another major
// version reports ErrVersionMismatch and the caller treats the entry as a
// cache miss. The MessagePack header also carries the minor version.
package serializer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/xiang66/ccls/internal/index"
)

// Format selects a cache encoding
type Format int

const (
	// FormatJSON is the readable form
	FormatJSON Format = iota
	// FormatMsgPack is the binary form
	FormatMsgPack
)

var (
	// ErrVersionMismatch is returned when the cached major version differs
	// from the expected one
	ErrVersionMismatch = errors.New("index version mismatch")
	// ErrUnknownFormat is returned for an unsupported format name or value
	ErrUnknownFormat = errors.New("unknown serialization format")
)

// ParseFormat maps a config value to a Format
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON, nil
	case "msgpack", "binary", "":
		return FormatMsgPack, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatMsgPack:
		return "msgpack"
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// Ext is the file extension used for cache entries of this format
func (f Format) Ext() string {
	if f == FormatJSON {
		return ".json"
	}
	return ".mpack"
}

type jsonEnvelope struct {
	Major int             `json:"major"`
	File  json.RawMessage `json:"file"`
}

// Serialize encodes file. Diagnostics and file contents are never written.
func Serialize(format Format, file *index.IndexFile) ([]byte, error) {
	switch format {
	case FormatJSON:
		body, err := json.Marshal(file)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", file.Path, err)
		}
		return json.Marshal(jsonEnvelope{Major: index.MajorVersion, File: body})

	case FormatMsgPack:
		var buf bytes.Buffer
		enc := msgpack.NewEncoder(&buf)
		enc.SetCustomStructTag("json")
		if err := enc.EncodeInt(index.MajorVersion); err != nil {
			return nil, err
		}
		if err := enc.EncodeInt(index.MinorVersion); err != nil {
			return nil, err
		}
		if err := enc.Encode(file); err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", file.Path, err)
		}
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("%w: %v", ErrUnknownFormat, format)
}

// Deserialize decodes data written by Serialize. The loaded file gets path
// as its Path and a rebuilt id cache.
func Deserialize(format Format, path string, data []byte, expectedVersion int) (*index.IndexFile, error) {
	file := &index.IndexFile{}

	switch format {
	case FormatJSON:
		var env jsonEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", path, err)
		}
		if env.Major != expectedVersion {
			return nil, fmt.Errorf("%w: %s has %d, want %d", ErrVersionMismatch, path, env.Major, expectedVersion)
		}
		if err := json.Unmarshal(env.File, file); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", path, err)
		}

	case FormatMsgPack:
		dec := msgpack.NewDecoder(bytes.NewReader(data))
		dec.SetCustomStructTag("json")
		major, err := dec.DecodeInt()
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s header: %w", path, err)
		}
		if major != expectedVersion {
			return nil, fmt.Errorf("%w: %s has %d, want %d", ErrVersionMismatch, path, major, expectedVersion)
		}
		// Minor versions only add fields
		if _, err := dec.DecodeInt(); err != nil {
			return nil, fmt.Errorf("failed to decode %s header: %w", path, err)
		}
		if err := dec.Decode(file); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", path, err)
		}

	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownFormat, format)
	}

	file.Path = path
	if err := file.RebuildIDCache(); err != nil {
		return nil, err
	}
	return file, nil
}
