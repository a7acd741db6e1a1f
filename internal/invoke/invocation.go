package invoke

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/docstruct-ai/docstruct/constants"
	"github.com/docstruct-ai/docstruct/internal/bedrock"
)

// Result is the outcome of a structured invocation. Output holds the
// parsed JSON value, or the raw response text when the model never
// produced schema-conformant JSON within the reprompt budget. Callers
// relying on structured output must check the shape: a string Output
// means the fail-soft fallback fired.
type Result struct {
	Output     any
	TokenUsage bedrock.Usage
}

// Config wires one invocation.
type Config struct {
	// ModelID selects the Bedrock model.
	ModelID constants.ModelID
	// OutputSchema, when set, switches the invocation into
	// schema-constrained mode: extracted JSON is validated against it and
	// mismatches trigger reprompting. It is either a raw JSON Schema
	// document or a wrapper holding one under "output_schema".
	OutputSchema map[string]any
	// MaxRetries and InitialBackoff bound the throttling retries around
	// each network call.
	MaxRetries     int
	InitialBackoff time.Duration
	// RepromptRetries bounds the schema-correction cycles per invocation.
	RepromptRetries int
}

// Invocation runs one logical model invocation. It exclusively owns its
// conversation and retry state for its lifetime; concurrent invocations
// need independent instances.
type Invocation struct {
	rt        bedrock.Runtime
	req       *bedrock.Request
	embedBody any
	cfg       Config
	log       *slog.Logger

	repromptLeft int
	usage        *bedrock.Usage
}

// New creates an invocation for conversational (structured JSON or
// streaming) inference. The request is mutated in place: assistant replies
// and reprompt instructions are appended to its messages, never removed.
func New(rt bedrock.Runtime, req *bedrock.Request, cfg Config, logger *slog.Logger) *Invocation {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}
	if req != nil && req.AnthropicVersion == "" {
		req.AnthropicVersion = bedrock.AnthropicVersion
	}
	return &Invocation{
		rt:           rt,
		req:          req,
		cfg:          cfg,
		log:          logger,
		repromptLeft: cfg.RepromptRetries,
	}
}

// NewEmbedding creates an invocation for embedding inference. The body is
// the model-family-specific embedding request payload.
func NewEmbedding(rt bedrock.Runtime, body any, cfg Config, logger *slog.Logger) *Invocation {
	inv := New(rt, nil, cfg, logger)
	inv.embedBody = body
	return inv
}

// MessageHistory exposes the mutated conversation for continued
// multi-turn use by the caller.
func (inv *Invocation) MessageHistory() []bedrock.Message {
	if inv.req == nil {
		return nil
	}
	return inv.req.Messages
}

// TokenUsage returns the usage metrics of the last model response, or nil
// before any response arrived.
func (inv *Invocation) TokenUsage() *bedrock.Usage {
	return inv.usage
}

// InvokeModelJSON runs blocking structured inference: send, decode,
// extract JSON from the response text, validate against the output schema,
// and reprompt the model on malformed output until the budget runs out.
// Network and service errors are fatal; structured-output failures degrade
// to the raw response text instead of raising.
func (inv *Invocation) InvokeModelJSON(ctx context.Context) (*Result, error) {
	if inv.req == nil {
		return nil, fmt.Errorf("invocation has no conversational request body")
	}
	rid := uuid.New().String()
	start := time.Now()
	inv.log.Info("invoke.json.start",
		"req_id", rid,
		"model", inv.cfg.ModelID,
		"messages", len(inv.req.Messages),
		"schema_constrained", inv.cfg.OutputSchema != nil,
	)

	// Reprompting is a bounded loop, not recursion: each cycle appends a
	// corrective user turn and re-sends the grown conversation.
	for {
		resp, err := inv.send(ctx, rid)
		if err != nil {
			return nil, err
		}
		inv.usage = &resp.Usage
		inv.req.Messages = append(inv.req.Messages, bedrock.Message{Role: resp.Role, Content: resp.Content})
		text := resp.Text()

		parsed, found := extractJSON(text)

		if inv.cfg.OutputSchema == nil {
			// Validation and reprompting are disabled without a schema.
			if found {
				return inv.result(rid, start, parsed), nil
			}
			return inv.result(rid, start, text), nil
		}

		if found {
			vErr := validateAgainstSchema(inv.cfg.OutputSchema, parsed)
			if vErr == nil {
				return inv.result(rid, start, parsed), nil
			}
			inv.log.Warn("invoke.json.schema_mismatch",
				"req_id", rid, "error", vErr, "reprompts_left", inv.repromptLeft)
		} else {
			inv.log.Warn("invoke.json.no_json_found",
				"req_id", rid, "reprompts_left", inv.repromptLeft)
		}

		if inv.repromptLeft <= 0 {
			// Fail soft: the caller gets the raw assistant text.
			return inv.result(rid, start, text), nil
		}
		inv.repromptLeft--
		inv.req.Messages = append(inv.req.Messages, repromptMessage(inv.cfg.OutputSchema))
	}
}

// InvokeEmbedding runs blocking embedding inference. Titan-family models
// yield the flat vector under the "embedding" key; every other model's
// decoded envelope is returned unchanged. Dispatch is on the configured
// model identifier, not on response content.
func (inv *Invocation) InvokeEmbedding(ctx context.Context) (any, error) {
	if inv.embedBody == nil {
		return nil, fmt.Errorf("invocation has no embedding request body")
	}
	rid := uuid.New().String()
	start := time.Now()
	body, err := json.Marshal(inv.embedBody)
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	var raw []byte
	err = inv.policy().do(ctx, inv.log, func() error {
		var callErr error
		raw, callErr = inv.rt.Invoke(ctx, string(inv.cfg.ModelID), body)
		return callErr
	})
	if err != nil {
		return nil, err
	}

	var envelope map[string]any
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	inv.log.Info("invoke.embedding.ok",
		"req_id", rid, "model", inv.cfg.ModelID, "elapsed_ms", time.Since(start).Milliseconds())

	if !constants.IsFlatVectorEmbedding(inv.cfg.ModelID) {
		return envelope, nil
	}
	values, ok := envelope["embedding"].([]any)
	if !ok {
		return nil, fmt.Errorf("embedding response missing %q vector", "embedding")
	}
	vector := make([]float64, 0, len(values))
	for _, v := range values {
		f, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("embedding vector holds non-numeric element %v", v)
		}
		vector = append(vector, f)
	}
	return vector, nil
}

func (inv *Invocation) policy() retryPolicy {
	return retryPolicy{maxRetries: inv.cfg.MaxRetries, initial: inv.cfg.InitialBackoff}
}

func (inv *Invocation) send(ctx context.Context, rid string) (*bedrock.Response, error) {
	body, err := json.Marshal(inv.req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	inv.log.Debug("invoke.send", "req_id", rid, "content_length", len(body))
	var raw []byte
	err = inv.policy().do(ctx, inv.log, func() error {
		var callErr error
		raw, callErr = inv.rt.Invoke(ctx, string(inv.cfg.ModelID), body)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	var resp bedrock.Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &resp, nil
}

func (inv *Invocation) result(rid string, start time.Time, output any) *Result {
	usage := bedrock.Usage{}
	if inv.usage != nil {
		usage = *inv.usage
	}
	inv.log.Info("invoke.json.ok",
		"req_id", rid,
		"input_tokens", usage.InputTokens,
		"output_tokens", usage.OutputTokens,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return &Result{Output: output, TokenUsage: usage}
}
