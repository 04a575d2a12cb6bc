// Package mcpbridge imports tools from external MCP servers into the tool
// registry. It connects via stdio or streamable-HTTP transports using the
// official MCP Go SDK (github.com/modelcontextprotocol/go-sdk), discovers
// each server's tool catalogue, and registers one descriptor per discovered
// tool so the agent can call external tools the same way it calls built-in
// pharmacy tools.
package mcpbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/wonderful-ai/pharmagent/internal/config"
	"github.com/wonderful-ai/pharmagent/internal/mcp"
	"github.com/wonderful-ai/pharmagent/internal/tools"
)

// Bridge manages live connections to MCP servers. A single SDK client is
// reused across all sessions; the SDK supports concurrent sessions per
// client.
//
// The zero value is not usable; create instances with [New].
type Bridge struct {
	mu       sync.Mutex
	client   *mcpsdk.Client
	sessions map[string]*mcpsdk.ClientSession
}

// New creates a Bridge with no connections.
func New() *Bridge {
	return &Bridge{
		client: mcpsdk.NewClient(
			&mcpsdk.Implementation{Name: "pharmagent-mcpbridge", Version: "1.0.0"},
			nil,
		),
		sessions: make(map[string]*mcpsdk.ClientSession),
	}
}

// Connect establishes a session to the server described by cfg, discovers
// its tools, and registers each one with reg. Tool names collide across the
// whole registry, so a server offering a name an earlier registration took
// fails here.
func (b *Bridge) Connect(ctx context.Context, cfg config.MCPServerConfig, reg *tools.Registry) error {
	if cfg.Name == "" {
		return fmt.Errorf("mcpbridge: server config must have a non-empty name")
	}

	var transport mcpsdk.Transport
	switch cfg.Transport {
	case mcp.TransportStdio:
		executable, args := splitCommand(cfg.Command)
		if executable == "" {
			return fmt.Errorf("mcpbridge: stdio server %q requires a non-empty command", cfg.Name)
		}
		cmd := exec.CommandContext(ctx, executable, args...)
		for k, v := range cfg.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
		transport = &mcpsdk.CommandTransport{Command: cmd}

	case mcp.TransportStreamableHTTP:
		if cfg.URL == "" {
			return fmt.Errorf("mcpbridge: streamable-http server %q requires a non-empty url", cfg.Name)
		}
		transport = &mcpsdk.StreamableClientTransport{Endpoint: cfg.URL}

	default:
		return fmt.Errorf("mcpbridge: unknown transport %q for server %q", cfg.Transport, cfg.Name)
	}

	session, err := b.client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("mcpbridge: connect to server %q: %w", cfg.Name, err)
	}

	var discovered []mcpsdk.Tool
	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			_ = session.Close()
			return fmt.Errorf("mcpbridge: list tools for server %q: %w", cfg.Name, err)
		}
		discovered = append(discovered, *tool)
	}

	b.mu.Lock()
	if old, ok := b.sessions[cfg.Name]; ok {
		_ = old.Close()
	}
	b.sessions[cfg.Name] = session
	b.mu.Unlock()

	for _, t := range discovered {
		if err := reg.Register(b.descriptor(session, t)); err != nil {
			return fmt.Errorf("mcpbridge: server %q: %w", cfg.Name, err)
		}
	}
	return nil
}

// descriptor adapts one discovered MCP tool into a registry descriptor whose
// handler proxies calls through the session.
func (b *Bridge) descriptor(session *mcpsdk.ClientSession, t mcpsdk.Tool) tools.Descriptor {
	properties, required := splitSchema(t.InputSchema)
	name := t.Name

	return tools.Descriptor{
		Name:        name,
		Description: t.Description,
		Parameters:  properties,
		Required:    required,
		Handler: func(ctx context.Context, args map[string]any) map[string]any {
			result, err := session.CallTool(ctx, &mcpsdk.CallToolParams{
				Name:      name,
				Arguments: args,
			})
			if err != nil {
				return map[string]any{"error": tools.ErrToolFailed, "tool": name, "message": err.Error()}
			}

			var sb strings.Builder
			for _, c := range result.Content {
				if tc, ok := c.(*mcpsdk.TextContent); ok {
					sb.WriteString(tc.Text)
				}
			}
			text := sb.String()

			if result.IsError {
				return map[string]any{"error": tools.ErrToolFailed, "tool": name, "message": text}
			}

			// MCP returns text content. Servers that emit JSON objects get
			// them passed through structured; anything else is wrapped.
			var structured map[string]any
			if err := json.Unmarshal([]byte(text), &structured); err == nil {
				return structured
			}
			return map[string]any{"content": text}
		},
	}
}

// Close shuts down every session. The first error encountered is returned;
// remaining sessions are still closed.
func (b *Bridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var firstErr error
	for name, session := range b.sessions {
		if err := session.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("mcpbridge: close server %q: %w", name, err)
		}
		delete(b.sessions, name)
	}
	return firstErr
}

// splitSchema decomposes an MCP tool input schema into the registry's
// properties map and required list. Non-object or missing schemas come back
// empty, which registers a tool taking no validated arguments.
func splitSchema(schema any) (map[string]any, []string) {
	m := schemaToMap(schema)

	properties, _ := m["properties"].(map[string]any)
	if properties == nil {
		properties = map[string]any{}
	}

	var required []string
	switch req := m["required"].(type) {
	case []string:
		required = req
	case []any:
		for _, v := range req {
			if s, ok := v.(string); ok {
				required = append(required, s)
			}
		}
	}
	return properties, required
}

func schemaToMap(schema any) map[string]any {
	if schema == nil {
		return map[string]any{"type": "object"}
	}
	if m, ok := schema.(map[string]any); ok {
		return m
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]any{"type": "object"}
	}
	return m
}

func splitCommand(command string) (executable string, args []string) {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return "", nil
	}
	return parts[0], parts[1:]
}
