// Package mcp implements the Model Context Protocol (MCP) server for the C/C++
// symbol index.
//
// The server exposes these tools to MCP clients:
//   - index_project: index every translation unit under a directory
//   - index_file: reindex one file, optionally with unsaved content
//   - open_file / close_file: track editor buffers and per-file arguments
//   - find_definition: resolve the symbol at a position to its definition
//   - find_references: list every use of the symbol at a position
//   - call_hierarchy: list the callers and callees of a function
//   - search_symbols: find symbols by name fragment
//   - get_status: report index statistics for a project
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// Logs go to stderr because stdout carries the protocol.
//
// # Positions
//
// Lines and columns are zero-based, as in LSP. Navigation answers are LSP
// locations with file:// URIs:
//
//	Request:
//	{
//	  "name": "find_definition",
//	  "arguments": {"path": "/src/proj/b.cc", "line": 1, "column": 11}
//	}
//
//	Response:
//	{
//	  "usr": "c:@F@f#",
//	  "name": "f",
//	  "kind": "func",
//	  "locations": [{
//	    "uri": "file:///src/proj/a.cc",
//	    "range": {"start": {"line": 1, "character": 5}, "end": {"line": 1, "character": 6}}
//	  }]
//	}
//
// find_definition falls back to declarations when no definition is
// indexed, for example a function whose body lives in a library.
//
// # Working Files
//
// open_file stores the editor content of a file. Later parses of any
// translation unit read that content instead of the disk until close_file.
// Passing args replaces the project compiler arguments for that file. Only
// source files are indexed on open; a header is picked up when the
// translation unit including it is reindexed. The answer carries
// skipped_ranges, the regions an inactive #if removed from the last index.
//
// # Call Hierarchy
//
// Callers come from the call-role references of the function, grouped by
// the function enclosing each call. Callees come from the cached index of
// the file holding the definition. Both sides list the call sites in
// from_ranges, relative to from_uri.
//
// # Errors
//
// Tool failures are returned as *MCPError with JSON-RPC style codes:
//
//	-32602  invalid parameters
//	-32603  internal error
//	-32001  directory holds no C/C++ sources
//	-32002  another index_project run is in progress
//	-32003  no project indexed yet, or the file is not part of it
//	-32004  no symbol at the requested position
package mcp
