// Package tools provides the tool registry: a name-keyed table of callable
// domain tools with argument validation, bounded execution, and usage
// counting.
//
// The registry converts every failure mode into a structured result map fed
// back to the model as data. Nothing a handler does — unknown names, missing
// arguments, timeouts, even panics — escapes Dispatch as a Go error, because
// the model can only react to failures it can see in the conversation.
package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/wonderful-ai/pharmagent/internal/stats"
	"github.com/wonderful-ai/pharmagent/pkg/types"
)

// Dispatch-level error codes returned in the "error" key of a result map.
const (
	ErrUnknownTool     = "UNKNOWN_TOOL"
	ErrMissingArgument = "MISSING_REQUIRED_ARGUMENT"
	ErrTimeout         = "TIMEOUT"
	ErrToolFailed      = "TOOL_FAILED"
)

// Handler executes a tool with validated arguments. Results are always
// structured data; domain failures come back as {"error": CODE, ...} maps,
// never as raised errors.
type Handler func(ctx context.Context, args map[string]any) map[string]any

// Descriptor is the static metadata for one registered tool.
type Descriptor struct {
	// Name uniquely identifies the tool within the registry.
	Name string

	// Description tells the model what the tool does and when to use it.
	Description string

	// Parameters is the JSON-schema "properties" object describing the
	// tool's arguments.
	Parameters map[string]any

	// Required lists argument names that must be present for the handler
	// to run.
	Required []string

	// Handler executes the tool.
	Handler Handler
}

// Registry is a name-keyed table of tool descriptors. Tools are registered
// once at process start; Dispatch and Definitions are safe for concurrent
// use thereafter.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Descriptor

	recorder stats.Recorder
	timeout  time.Duration
	logger   *slog.Logger
}

// Option is a functional option for Registry.
type Option func(*Registry)

// WithToolTimeout bounds each handler execution. Zero disables the bound.
func WithToolTimeout(d time.Duration) Option {
	return func(r *Registry) {
		r.timeout = d
	}
}

// WithLogger sets the logger used for stats and panic reporting.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = l
	}
}

// NewRegistry creates an empty Registry. The recorder counts every dispatch
// attempt; pass a stats.Memory recorder when persistence is unavailable.
func NewRegistry(recorder stats.Recorder, opts ...Option) *Registry {
	r := &Registry{
		tools:    make(map[string]Descriptor),
		recorder: recorder,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Register adds a tool descriptor. It returns an error for empty names,
// nil handlers, or duplicate registrations.
func (r *Registry) Register(d Descriptor) error {
	if d.Name == "" {
		return fmt.Errorf("tools: descriptor must have a non-empty name")
	}
	if d.Handler == nil {
		return fmt.Errorf("tools: tool %q must have a handler", d.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[d.Name]; exists {
		return fmt.Errorf("tools: tool %q is already registered", d.Name)
	}
	r.tools[d.Name] = d
	return nil
}

// Definitions returns the tool schemas offered to the completion client,
// sorted by name. Handlers are not exposed.
func (r *Registry) Definitions() []types.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]types.ToolDefinition, 0, len(r.tools))
	for _, d := range r.tools {
		params := map[string]any{
			"type":       "object",
			"properties": d.Parameters,
		}
		if len(d.Required) > 0 {
			params["required"] = d.Required
		}
		defs = append(defs, types.ToolDefinition{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  params,
		})
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Dispatch looks up the named tool, validates its required arguments, and
// runs the handler. Every call increments the tool's usage counter, whether
// or not it succeeds.
//
// The returned map is the tool's result on success, or a structured error
// ({"error": CODE, ...}) for unknown tools, missing arguments, timeouts,
// and handler panics. Dispatch never returns a Go error.
func (r *Registry) Dispatch(ctx context.Context, name string, args map[string]any) map[string]any {
	r.recorder.Increment(ctx, name)

	r.mu.RLock()
	d, ok := r.tools[name]
	r.mu.RUnlock()

	if !ok {
		return map[string]any{"error": ErrUnknownTool, "tool": name}
	}

	if args == nil {
		args = map[string]any{}
	}
	for _, req := range d.Required {
		if _, present := args[req]; !present {
			return map[string]any{
				"error":     ErrMissingArgument,
				"tool":      name,
				"parameter": req,
			}
		}
	}

	return r.run(ctx, d, args)
}

// run executes the handler under the configured timeout, converting panics
// and deadline expiry into structured error results.
func (r *Registry) run(ctx context.Context, d Descriptor, args map[string]any) map[string]any {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	done := make(chan map[string]any, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("tool handler panicked", "tool", d.Name, "panic", rec)
				done <- map[string]any{"error": ErrToolFailed, "tool": d.Name}
			}
		}()
		done <- d.Handler(ctx, args)
	}()

	select {
	case result := <-done:
		if result == nil {
			return map[string]any{"error": ErrToolFailed, "tool": d.Name}
		}
		return result
	case <-ctx.Done():
		return map[string]any{"error": ErrTimeout, "tool": d.Name}
	}
}
