package invoke

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/docstruct-ai/docstruct/constants"
	"github.com/docstruct-ai/docstruct/internal/bedrock"
)

// ItemKind tags the items a Stream produces.
type ItemKind int

const (
	// KindStartMarker opens the text portion of the output.
	KindStartMarker ItemKind = iota
	// KindTextChunk carries one incremental text chunk, in arrival order.
	KindTextChunk
	// KindEndMarker closes the text portion of the output.
	KindEndMarker
	// KindUsage carries the final token-usage metrics and terminates the
	// sequence.
	KindUsage
)

// StreamItem is one element of a streaming invocation's output sequence.
type StreamItem struct {
	Kind  ItemKind
	Text  string         // marker or chunk text
	Usage *bedrock.Usage // set for KindUsage
}

// Stream is a single-pass pull iterator over a streaming invocation:
//
//	for s.Next() {
//		item := s.Item()
//		...
//	}
//	if err := s.Err(); err != nil { ... }
//
// Once the sequence ends the accumulated assistant text is appended to
// the conversation as a single message.
type Stream struct {
	inv    *Invocation
	chunks bedrock.ChunkReader

	item StreamItem
	full strings.Builder
	err  error
	done bool
}

// InvokeModelStream opens streaming inference over the current request
// body. Throttling on the open is retried with the same backoff policy as
// blocking calls.
func (inv *Invocation) InvokeModelStream(ctx context.Context) (*Stream, error) {
	if inv.req == nil {
		return nil, fmt.Errorf("invocation has no conversational request body")
	}
	rid := uuid.New().String()
	inv.log.Info("invoke.stream.start",
		"req_id", rid,
		"model", inv.cfg.ModelID,
		"messages", len(inv.req.Messages),
	)
	body, err := json.Marshal(inv.req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	var chunks bedrock.ChunkReader
	err = inv.policy().do(ctx, inv.log, func() error {
		var callErr error
		chunks, callErr = inv.rt.InvokeStream(ctx, string(inv.cfg.ModelID), body)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return &Stream{inv: inv, chunks: chunks}, nil
}

// Next advances to the next item. It returns false once the sequence is
// exhausted or a decoding/transport error occurred; check Err afterwards.
func (s *Stream) Next() bool {
	if s.done {
		return false
	}
	for {
		raw, err := s.chunks.Next()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.err = err
			}
			s.finish()
			return false
		}
		var ev bedrock.StreamEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			s.err = fmt.Errorf("decode stream event: %w", err)
			s.finish()
			return false
		}
		switch ev.Type {
		case bedrock.EventContentBlockStart:
			s.item = StreamItem{Kind: KindStartMarker, Text: constants.StreamStartMarker}
			return true
		case bedrock.EventContentBlockDelta:
			var text string
			if ev.Delta != nil {
				text = ev.Delta.Text
			}
			s.full.WriteString(text)
			s.item = StreamItem{Kind: KindTextChunk, Text: text}
			return true
		case bedrock.EventContentBlockStop:
			s.item = StreamItem{Kind: KindEndMarker, Text: constants.StreamEndMarker}
			return true
		case bedrock.EventMessageStop:
			usage := &bedrock.Usage{}
			if m := ev.Metrics; m != nil {
				usage.InputTokens = m.InputTokenCount
				usage.OutputTokens = m.OutputTokenCount
			}
			s.inv.usage = usage
			s.inv.log.Info("invoke.stream.ok",
				"input_tokens", usage.InputTokens,
				"output_tokens", usage.OutputTokens,
			)
			s.item = StreamItem{Kind: KindUsage, Usage: usage}
			// Usage is the terminal item of the sequence.
			s.finish()
			return true
		default:
			// The service may grow new event kinds; skip what we don't know.
			s.inv.log.Debug("invoke.stream.unknown_event", "type", ev.Type)
		}
	}
}

// Item returns the current item. Valid only after Next reported true.
func (s *Stream) Item() StreamItem {
	return s.item
}

// Err returns the first transport or decoding error, if any.
func (s *Stream) Err() error {
	return s.err
}

// finish closes the chunk reader and records the accumulated assistant
// text as one conversation turn. Idempotent.
func (s *Stream) finish() {
	if s.done {
		return
	}
	s.done = true
	_ = s.chunks.Close()
	s.inv.req.Messages = append(s.inv.req.Messages, bedrock.Message{
		Role:    bedrock.RoleAssistant,
		Content: []bedrock.ContentBlock{{Type: "text", Text: s.full.String()}},
	})
}
