// Package agent implements the orchestration loop for one conversational
// turn: it drives the completion provider over the caller-supplied history,
// re-emits streamed text as events, dispatches requested tool calls through
// the registry, and feeds results back into the conversation until the model
// stops asking for tools or the round bound is reached.
//
// The loop is stateless across turns. Each Run receives the full history and
// returns it extended; concurrent turns share nothing but the registry's
// usage counter.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/wonderful-ai/pharmagent/internal/tools"
	"github.com/wonderful-ai/pharmagent/pkg/provider/llm"
	"github.com/wonderful-ai/pharmagent/pkg/types"
)

// DefaultMaxToolRounds bounds tool-call ping-pong when no explicit limit is
// configured.
const DefaultMaxToolRounds = 10

// EmitFunc receives each stream event in production order. A non-nil return
// signals the client is gone; the loop stops issuing further completion
// calls and dispatches.
type EmitFunc func(Event) error

// Result is the outcome of one completed turn.
type Result struct {
	// AssistantText is the concatenation of every text increment produced
	// during the turn.
	AssistantText string

	// History is the caller's conversation history extended with the
	// assistant and tool messages appended during the turn.
	History []types.Message

	// Rounds counts the tool rounds executed.
	Rounds int

	// Aborted reports that the provider failed mid-turn and the stream was
	// closed with an error event.
	Aborted bool
}

// Loop orchestrates turns against one provider and one tool registry.
// A single Loop serves concurrent turns; Run keeps all per-turn state on its
// own stack.
type Loop struct {
	provider llm.Provider
	registry *tools.Registry

	maxToolRounds     int
	completionTimeout time.Duration
	temperature       float64
	maxTokens         int
	systemPrompt      string
	logger            *slog.Logger
}

// Option is a functional option for Loop.
type Option func(*Loop)

// WithMaxToolRounds bounds the number of tool rounds per turn. Values below
// one are ignored.
func WithMaxToolRounds(n int) Option {
	return func(l *Loop) {
		if n >= 1 {
			l.maxToolRounds = n
		}
	}
}

// WithCompletionTimeout bounds each individual provider call. Zero disables
// the bound.
func WithCompletionTimeout(d time.Duration) Option {
	return func(l *Loop) {
		l.completionTimeout = d
	}
}

// WithSampling sets the temperature and completion token cap forwarded to
// the provider.
func WithSampling(temperature float64, maxTokens int) Option {
	return func(l *Loop) {
		l.temperature = temperature
		l.maxTokens = maxTokens
	}
}

// WithSystemPrompt sets the instruction injected ahead of every turn's
// history.
func WithSystemPrompt(prompt string) Option {
	return func(l *Loop) {
		l.systemPrompt = prompt
	}
}

// WithLogger sets the structured logger. Defaults to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) {
		l.logger = logger
	}
}

// New creates a Loop bound to the given provider and registry.
func New(provider llm.Provider, registry *tools.Registry, opts ...Option) *Loop {
	l := &Loop{
		provider:      provider,
		registry:      registry,
		maxToolRounds: DefaultMaxToolRounds,
		logger:        slog.Default(),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Run executes one turn over history, emitting every stream event through
// emit in production order. The final event is always done; provider
// failures are reported as an error event first and flagged on the Result.
//
// Run returns a non-nil error only when emit fails (client disconnect) or
// ctx is cancelled; in both cases the turn is already torn down and nothing
// more will be emitted.
func (l *Loop) Run(ctx context.Context, history []types.Message, emit EmitFunc) (*Result, error) {
	res := &Result{History: history}
	var text strings.Builder

	var finalText string
	for {
		turn, err := l.completeOnce(ctx, res.History, &text, emit)
		if err != nil {
			if emitFailed(err) || ctx.Err() != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				return nil, err
			}
			l.logger.Error("completion failed", "round", res.Rounds, "error", err)
			res.Aborted = true
			res.AssistantText = text.String()
			if emitErr := emit(ErrorEvent(err.Error())); emitErr != nil {
				return nil, emitErr
			}
			if emitErr := emit(Done()); emitErr != nil {
				return nil, emitErr
			}
			return res, nil
		}

		if len(turn.toolCalls) == 0 {
			finalText = turn.text
			break
		}

		res.History = append(res.History, types.Message{
			Role:      types.RoleAssistant,
			Content:   turn.text,
			ToolCalls: turn.toolCalls,
		})

		for _, tc := range turn.toolCalls {
			args := decodeArguments(tc.Arguments)
			if err := emit(ToolCallEvent(tc.Name, args)); err != nil {
				return nil, err
			}

			result := l.registry.Dispatch(ctx, tc.Name, args)
			if ctx.Err() != nil {
				// Client gone mid-dispatch: the result must not reach a
				// closed stream.
				l.logger.Info("discarding tool result after cancellation", "tool", tc.Name)
				return nil, ctx.Err()
			}
			if err := emit(ToolResultEvent(tc.Name, result)); err != nil {
				return nil, err
			}

			res.History = append(res.History, types.Message{
				Role:       types.RoleTool,
				Content:    encodeResult(result),
				ToolCallID: tc.ID,
			})
		}

		res.Rounds++
		if res.Rounds >= l.maxToolRounds {
			l.logger.Warn("tool round bound reached", "rounds", res.Rounds)
			break
		}
	}

	res.AssistantText = text.String()
	if finalText != "" {
		res.History = append(res.History, types.Message{
			Role:    types.RoleAssistant,
			Content: finalText,
		})
	}

	if err := emit(Done()); err != nil {
		return nil, err
	}
	return res, nil
}

// emitError wraps a failure reported by the caller's EmitFunc so Run can
// tell a dead client apart from a dead provider.
type emitError struct{ err error }

func (e *emitError) Error() string { return e.err.Error() }
func (e *emitError) Unwrap() error { return e.err }

func emitFailed(err error) bool {
	var ee *emitError
	return errors.As(err, &ee)
}

// turnOutput is everything one provider stream produced.
type turnOutput struct {
	text      string
	toolCalls []types.ToolCall
}

// completeOnce runs a single provider stream to completion, emitting text
// and tool-argument increments as they arrive and accumulating text into
// acc. A mid-stream provider failure comes back as a plain error; a failed
// emit comes back wrapped in emitError.
func (l *Loop) completeOnce(ctx context.Context, history []types.Message, acc *strings.Builder, emit EmitFunc) (*turnOutput, error) {
	if l.completionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.completionTimeout)
		defer cancel()
	}

	chunks, err := l.provider.StreamCompletion(ctx, llm.CompletionRequest{
		Messages:     history,
		Tools:        l.registry.Definitions(),
		Temperature:  l.temperature,
		MaxTokens:    l.maxTokens,
		SystemPrompt: l.systemPrompt,
	})
	if err != nil {
		return nil, fmt.Errorf("agent: start completion: %w", err)
	}

	out := &turnOutput{}
	var text strings.Builder
	for chunk := range chunks {
		if chunk.FinishReason == "error" {
			return nil, fmt.Errorf("agent: completion stream: %s", chunk.Text)
		}
		if chunk.Text != "" {
			text.WriteString(chunk.Text)
			acc.WriteString(chunk.Text)
			if err := emit(TextDelta(chunk.Text)); err != nil {
				return nil, &emitError{err: err}
			}
		}
		if chunk.ArgumentsDelta != "" {
			if err := emit(ToolArgsDelta(chunk.ArgumentsFor, chunk.ArgumentsDelta)); err != nil {
				return nil, &emitError{err: err}
			}
		}
		if len(chunk.ToolCalls) > 0 {
			out.toolCalls = append(out.toolCalls, chunk.ToolCalls...)
		}
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("agent: completion: %w", ctx.Err())
	}

	out.text = text.String()
	return out, nil
}

// decodeArguments parses the model's argument JSON. Malformed JSON
// dispatches with an empty mapping so required-argument validation produces
// the structured error the model can react to.
func decodeArguments(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil || args == nil {
		return map[string]any{}
	}
	return args
}

// encodeResult serializes a tool result for the history's tool message.
func encodeResult(result map[string]any) string {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Sprintf(`{"error":"%s"}`, tools.ErrToolFailed)
	}
	return string(data)
}
