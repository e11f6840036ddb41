package enrich

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// StdioTool runs an MCP server as a child process over stdio and exposes a
// single named tool from it. The connection is established lazily on the
// first call and reused afterwards.
type StdioTool struct {
	command string
	args    []string
	env     []string
	tool    string
	arg     string

	mu sync.Mutex
	c  *client.Client
}

// NewStdioTool configures an MCP stdio tool. toolName is the tool to call;
// argName is the tool argument that receives the prompt text.
func NewStdioTool(command string, args, env []string, toolName, argName string) *StdioTool {
	if argName == "" {
		argName = "query"
	}
	return &StdioTool{
		command: command,
		args:    args,
		env:     env,
		tool:    toolName,
		arg:     argName,
	}
}

// connect starts the server process and performs the MCP handshake.
func (s *StdioTool) connect(ctx context.Context) (*client.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return s.c, nil
	}

	c, err := client.NewStdioMCPClient(s.command, s.env, s.args...)
	if err != nil {
		return nil, fmt.Errorf("starting mcp server %q: %w", s.command, err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "counsel", Version: "1.0.0"}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		c.Close()
		return nil, fmt.Errorf("initializing mcp session: %w", err)
	}

	s.c = c
	return c, nil
}

// CallTool invokes the configured tool with the prompt text and joins the
// textual content blocks of the reply.
func (s *StdioTool) CallTool(ctx context.Context, text string) (string, error) {
	c, err := s.connect(ctx)
	if err != nil {
		return "", err
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = s.tool
	req.Params.Arguments = map[string]any{s.arg: text}

	res, err := c.CallTool(ctx, req)
	if err != nil {
		s.reset()
		return "", fmt.Errorf("calling tool %q: %w", s.tool, err)
	}

	var parts []string
	for _, content := range res.Content {
		if tc, ok := content.(mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	out := strings.Join(parts, "\n")

	if res.IsError {
		if out == "" {
			out = "tool reported an error"
		}
		return "", fmt.Errorf("tool %q failed: %s", s.tool, out)
	}
	return out, nil
}

// reset drops a broken session so the next call reconnects.
func (s *StdioTool) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		s.c.Close()
		s.c = nil
	}
}

// Close terminates the server process, if one was started.
func (s *StdioTool) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return nil
	}
	err := s.c.Close()
	s.c = nil
	return err
}
