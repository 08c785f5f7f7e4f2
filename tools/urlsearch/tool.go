// Package urlsearch exposes the fetch pipeline to LLM agents as the
// search_url tool of a Model Context Protocol server.
package urlsearch

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	webfetcher "github.com/c360studio/semfetch/processor/web-fetcher"
)

// ToolName is the name agents call the tool by.
const ToolName = "search_url"

// Runner runs one URL through the fetch pipeline. *webfetcher.Pipeline
// satisfies it.
type Runner interface {
	Run(ctx context.Context, rawURL string, timeout *float64) webfetcher.Response
}

// Input is the search_url argument object.
type Input struct {
	URL     string   `json:"url" jsonschema:"The URL to fetch content from. Must be a valid HTTP or HTTPS URL."`
	Timeout *float64 `json:"timeout,omitempty" jsonschema:"Optional timeout in seconds. Defaults to the server's configured timeout and may not exceed its maximum."`
}

// Tool describes search_url.
func Tool() *mcp.Tool {
	return &mcp.Tool{
		Name: ToolName,
		Description: "Fetch a web page URL and return its title and plain-text content. " +
			"Only public http and https addresses are allowed. Failures report a machine-readable error_kind.",
		Annotations: &mcp.ToolAnnotations{
			Title:        "Fetch URL text",
			ReadOnlyHint: true,
		},
	}
}

// Register adds search_url to server.
func Register(server *mcp.Server, runner Runner) {
	mcp.AddTool(server, Tool(), handler(runner))
}

func handler(runner Runner) mcp.ToolHandlerFor[Input, webfetcher.Response] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in Input) (*mcp.CallToolResult, webfetcher.Response, error) {
		resp := runner.Run(ctx, in.URL, in.Timeout)
		result := &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: resp.Summary()}},
			IsError: !resp.Success,
		}
		return result, resp, nil
	}
}

// NewServer creates an MCP server with search_url registered.
func NewServer(runner Runner, version string, opts *mcp.ServerOptions) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "semfetch",
		Version: version,
	}, opts)
	Register(server, runner)
	return server
}
