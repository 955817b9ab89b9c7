// Package vault talks to users' data vaults.
//
// Reads go through the vault's MCP server, authenticated as the user.
// Writes go straight to the vault REST API with the user's vault key; that
// path does not fire the vault's change webhooks, so a sync write can never
// trigger another sync.
package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/xbora/mio/internal/types"
)

// Dialer opens an MCP transport authenticated as userID.
type Dialer func(ctx context.Context, userID types.UserID) (gomcp.Transport, error)

// MCPReader reads skills and tabular records through the vault MCP server.
type MCPReader struct {
	client *gomcp.Client
	dial   Dialer
}

// NewMCPReader connects to the streamable HTTP endpoint, sending the user
// id as the bearer token.
func NewMCPReader(endpoint string, timeout time.Duration) *MCPReader {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return NewMCPReaderWithDialer(func(ctx context.Context, userID types.UserID) (gomcp.Transport, error) {
		return &gomcp.StreamableClientTransport{
			Endpoint: endpoint,
			HTTPClient: &http.Client{
				Timeout:   timeout,
				Transport: bearerTransport{token: string(userID), base: http.DefaultTransport},
			},
		}, nil
	})
}

func NewMCPReaderWithDialer(dial Dialer) *MCPReader {
	return &MCPReader{
		client: gomcp.NewClient(&gomcp.Implementation{Name: "mio-sync", Version: "v1.0.0"}, nil),
		dial:   dial,
	}
}

type bearerTransport struct {
	token string
	base  http.RoundTripper
}

func (b bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+b.token)
	return b.base.RoundTrip(req)
}

// ListSkills returns the names of the skills the user owns.
func (r *MCPReader) ListSkills(ctx context.Context, userID types.UserID) ([]string, error) {
	var out struct {
		MySkills []struct {
			Name string `json:"name"`
		} `json:"my_skills"`
	}
	if err := r.call(ctx, userID, "list_skills", map[string]any{}, &out); err != nil {
		return nil, err
	}
	if out.MySkills == nil {
		return nil, &types.UpstreamError{Service: "vault mcp", Err: errors.New("failed to parse skills list")}
	}
	names := make([]string, len(out.MySkills))
	for i, s := range out.MySkills {
		names[i] = s.Name
	}
	return names, nil
}

// TabularItems returns every record of a tabular skill.
func (r *MCPReader) TabularItems(ctx context.Context, userID types.UserID, skill string) ([]Record, error) {
	var out struct {
		Success bool     `json:"success"`
		Data    []Record `json:"data"`
		Error   string   `json:"error"`
	}
	if err := r.call(ctx, userID, "get_tabular_items", map[string]any{"skill": skill}, &out); err != nil {
		return nil, err
	}
	if !out.Success {
		msg := out.Error
		if msg == "" {
			msg = "read failed"
		}
		return nil, &types.UpstreamError{Service: "vault mcp", Err: errors.New(msg)}
	}
	return out.Data, nil
}

func (r *MCPReader) call(ctx context.Context, userID types.UserID, tool string, args map[string]any, out any) error {
	transport, err := r.dial(ctx, userID)
	if err != nil {
		return fmt.Errorf("dial vault mcp: %w", err)
	}
	session, err := r.client.Connect(ctx, transport, nil)
	if err != nil {
		return &types.UpstreamError{Service: "vault mcp", Err: err}
	}
	defer session.Close()

	result, err := session.CallTool(ctx, &gomcp.CallToolParams{Name: tool, Arguments: args})
	if err != nil {
		return &types.UpstreamError{Service: "vault mcp", Err: fmt.Errorf("call %s: %w", tool, err)}
	}
	if result.IsError {
		return &types.UpstreamError{Service: "vault mcp", Err: fmt.Errorf("%s: %s", tool, resultText(result))}
	}
	return decodeResult(result, out)
}

// decodeResult prefers the first text block, then structured content.
func decodeResult(result *gomcp.CallToolResult, out any) error {
	if text := resultText(result); text != "" {
		if err := json.Unmarshal([]byte(text), out); err != nil {
			return fmt.Errorf("parse tool result: %w", err)
		}
		return nil
	}
	if result.StructuredContent == nil {
		return errors.New("empty tool result")
	}
	data, err := json.Marshal(result.StructuredContent)
	if err != nil {
		return fmt.Errorf("marshal structured content: %w", err)
	}
	return json.Unmarshal(data, out)
}

func resultText(result *gomcp.CallToolResult) string {
	for _, c := range result.Content {
		if tc, ok := c.(*gomcp.TextContent); ok && tc.Text != "" {
			return tc.Text
		}
	}
	return ""
}
