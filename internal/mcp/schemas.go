package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// positionProperties are shared by the navigation tools
func positionProperties() map[string]interface{} {
	return map[string]interface{}{
		"path": map[string]interface{}{
			"type":        "string",
			"description": "Absolute path of the file",
		},
		"line": map[string]interface{}{
			"type":        "integer",
			"description": "Zero-based line",
			"minimum":     0,
		},
		"column": map[string]interface{}{
			"type":        "integer",
			"description": "Zero-based column",
			"minimum":     0,
		},
	}
}

// indexProjectTool returns the tool definition for index_project
func indexProjectTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_project",
		Description: "Index every C/C++ translation unit under a directory. Unchanged files are skipped.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the project root",
				},
			},
			Required: []string{"path"},
		},
	}
}

// indexFileTool returns the tool definition for index_file
func indexFileTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_file",
		Description: "Reindex one file of the open project. A header is reindexed through the translation unit that includes it.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path of the file",
				},
				"content": map[string]interface{}{
					"type":        "string",
					"description": "Unsaved content replacing the file on disk for this parse",
				},
			},
			Required: []string{"path"},
		},
	}
}

// openFileTool returns the tool definition for open_file
func openFileTool() mcp.Tool {
	return mcp.Tool{
		Name:        "open_file",
		Description: "Track a file open in an editor. Source files are indexed right away. Reports the regions the preprocessor skipped.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path of the file",
				},
				"content": map[string]interface{}{
					"type":        "string",
					"description": "Editor content. Defaults to the last indexed content, then the disk.",
				},
				"args": map[string]interface{}{
					"type":        "array",
					"description": "Compiler arguments replacing the project arguments for this file",
					"items": map[string]interface{}{
						"type": "string",
					},
				},
			},
			Required: []string{"path"},
		},
	}
}

// closeFileTool returns the tool definition for close_file
func closeFileTool() mcp.Tool {
	return mcp.Tool{
		Name:        "close_file",
		Description: "Stop tracking an editor file. Later parses read it from disk.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path of the file",
				},
			},
			Required: []string{"path"},
		},
	}
}

// findDefinitionTool returns the tool definition for find_definition
func findDefinitionTool() mcp.Tool {
	return mcp.Tool{
		Name:        "find_definition",
		Description: "Find the definition of the symbol at a position, falling back to its declarations",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: positionProperties(),
			Required:   []string{"path", "line", "column"},
		},
	}
}

// findReferencesTool returns the tool definition for find_references
func findReferencesTool() mcp.Tool {
	props := positionProperties()
	props["include_declaration"] = map[string]interface{}{
		"type":        "boolean",
		"description": "Also return the definition and declarations",
		"default":     false,
	}
	return mcp.Tool{
		Name:        "find_references",
		Description: "Find every use of the symbol at a position across the project",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: props,
			Required:   []string{"path", "line", "column"},
		},
	}
}

// callHierarchyTool returns the tool definition for call_hierarchy
func callHierarchyTool() mcp.Tool {
	props := positionProperties()
	props["direction"] = map[string]interface{}{
		"type":        "string",
		"description": "incoming lists the callers, outgoing the callees",
		"enum":        []string{"incoming", "outgoing", "both"},
		"default":     "both",
	}
	return mcp.Tool{
		Name:        "call_hierarchy",
		Description: "List the callers and callees of the function at a position, with the call sites of each",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: props,
			Required:   []string{"path", "line", "column"},
		},
	}
}

// searchSymbolsTool returns the tool definition for search_symbols
func searchSymbolsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_symbols",
		Description: "Find symbols whose name contains a query. Each symbol is reported at its definition when one is indexed.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Name or qualified name fragment, e.g. parse or ns::Parser",
				},
				"kinds": map[string]interface{}{
					"type":        "array",
					"description": "Restrict results to these kinds",
					"items": map[string]interface{}{
						"type": "string",
						"enum": []string{"type", "func", "var"},
					},
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results",
					"default":     20,
					"minimum":     1,
					"maximum":     100,
				},
			},
			Required: []string{"query"},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Query indexing status and statistics for a project",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the project root",
				},
			},
			Required: []string{"path"},
		},
	}
}
