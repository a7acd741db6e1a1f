package invoke

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docstruct-ai/docstruct/constants"
	"github.com/docstruct-ai/docstruct/internal/bedrock"
)

// fakeRuntime scripts the transport: each element of replies is either a
// []byte response body or an error.
type fakeRuntime struct {
	replies []any
	calls   int
	bodies  [][]byte

	streamChunks [][]byte
	streamErr    error
}

func (f *fakeRuntime) Invoke(_ context.Context, _ string, body []byte) ([]byte, error) {
	f.bodies = append(f.bodies, body)
	if f.calls >= len(f.replies) {
		return nil, fmt.Errorf("unexpected Invoke call %d", f.calls+1)
	}
	reply := f.replies[f.calls]
	f.calls++
	if err, ok := reply.(error); ok {
		return nil, err
	}
	return reply.([]byte), nil
}

func (f *fakeRuntime) InvokeStream(_ context.Context, _ string, body []byte) (bedrock.ChunkReader, error) {
	f.bodies = append(f.bodies, body)
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	return &fakeChunkReader{chunks: f.streamChunks}, nil
}

type fakeChunkReader struct {
	chunks [][]byte
	next   int
	closed bool
}

func (r *fakeChunkReader) Next() ([]byte, error) {
	if r.next >= len(r.chunks) {
		return nil, io.EOF
	}
	c := r.chunks[r.next]
	r.next++
	return c, nil
}

func (r *fakeChunkReader) Close() error {
	r.closed = true
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"doc_type": map[string]any{"type": "string"},
		},
		"required": []any{"doc_type"},
	}
}

func assistantReply(t *testing.T, text string) []byte {
	t.Helper()
	b, err := json.Marshal(bedrock.Response{
		Role:    bedrock.RoleAssistant,
		Content: []bedrock.ContentBlock{{Type: "text", Text: text}},
		Usage:   bedrock.Usage{InputTokens: 12, OutputTokens: 34},
	})
	require.NoError(t, err)
	return b
}

func newRequest(prompt string) *bedrock.Request {
	return &bedrock.Request{
		MaxTokens: 256,
		Messages: []bedrock.Message{
			{Role: bedrock.RoleUser, Content: []bedrock.ContentBlock{{Type: "text", Text: prompt}}},
		},
	}
}

func newTestInvocation(rt bedrock.Runtime, req *bedrock.Request, schema map[string]any, reprompts int) *Invocation {
	return New(rt, req, Config{
		ModelID:         constants.ClaudeV3Sonnet,
		OutputSchema:    schema,
		MaxRetries:      2,
		InitialBackoff:  time.Millisecond,
		RepromptRetries: reprompts,
	}, testLogger())
}

func TestInvokeModelJSONHappyPath(t *testing.T) {
	rt := &fakeRuntime{replies: []any{
		assistantReply(t, "Here is the result:\n```json\n{\"doc_type\": \"invoice\"}\n```"),
	}}
	req := newRequest("classify this document")
	inv := newTestInvocation(rt, req, testSchema(), 2)

	res, err := inv.InvokeModelJSON(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"doc_type": "invoice"}, res.Output)
	assert.Equal(t, bedrock.Usage{InputTokens: 12, OutputTokens: 34}, res.TokenUsage)

	// No reprompt: exactly one network call, one appended assistant turn.
	assert.Equal(t, 1, rt.calls)
	require.Len(t, inv.MessageHistory(), 2)
	assert.Equal(t, bedrock.RoleAssistant, inv.MessageHistory()[1].Role)
}

func TestInvokeModelJSONRepromptThenFallback(t *testing.T) {
	const budget = 2
	rt := &fakeRuntime{replies: []any{
		assistantReply(t, "no json at all"),
		assistantReply(t, "still nothing useful"),
		assistantReply(t, "final raw answer"),
	}}
	req := newRequest("extract fields")
	inv := newTestInvocation(rt, req, testSchema(), budget)

	res, err := inv.InvokeModelJSON(context.Background())
	require.NoError(t, err)

	// Exhausted budget degrades to the latest raw text, never an error.
	assert.Equal(t, "final raw answer", res.Output)
	assert.Equal(t, budget+1, rt.calls)

	// Original turn plus one assistant reply, then one corrective
	// instruction and one reply per cycle.
	history := inv.MessageHistory()
	require.Len(t, history, 1+1+2*budget)
	for i, msg := range history {
		want := bedrock.RoleUser
		if i%2 == 1 {
			want = bedrock.RoleAssistant
		}
		assert.Equalf(t, want, msg.Role, "message %d", i)
	}
	assert.Contains(t, history[2].Content[0].Text, "<schema>")
	assert.Contains(t, history[2].Content[0].Text, "doc_type")
}

func TestInvokeModelJSONRepromptRecovers(t *testing.T) {
	rt := &fakeRuntime{replies: []any{
		assistantReply(t, "```json\n{\"doc_type\": 42}\n```"), // fails schema
		assistantReply(t, "```json\n{\"doc_type\": \"receipt\"}\n```"),
	}}
	req := newRequest("extract fields")
	inv := newTestInvocation(rt, req, testSchema(), 3)

	res, err := inv.InvokeModelJSON(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"doc_type": "receipt"}, res.Output)
	assert.Equal(t, 2, rt.calls)
}

func TestInvokeModelJSONBudgetZeroReturnsRawVerbatim(t *testing.T) {
	raw := "```json\n{broken\n```\nplus trailing prose"
	rt := &fakeRuntime{replies: []any{assistantReply(t, raw)}}
	req := newRequest("extract fields")
	inv := newTestInvocation(rt, req, testSchema(), 0)

	res, err := inv.InvokeModelJSON(context.Background())
	require.NoError(t, err)
	assert.Equal(t, raw, res.Output)
	assert.Equal(t, 1, rt.calls)
}

func TestInvokeModelJSONWithoutSchema(t *testing.T) {
	t.Run("json passes through unvalidated", func(t *testing.T) {
		rt := &fakeRuntime{replies: []any{
			assistantReply(t, "```json\n{\"anything\": [1, 2]}\n```"),
		}}
		inv := newTestInvocation(rt, newRequest("go"), nil, 2)
		res, err := inv.InvokeModelJSON(context.Background())
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"anything": []any{float64(1), float64(2)}}, res.Output)
	})
	t.Run("plain text is returned as-is, no reprompt", func(t *testing.T) {
		rt := &fakeRuntime{replies: []any{assistantReply(t, "just prose")}}
		inv := newTestInvocation(rt, newRequest("go"), nil, 2)
		res, err := inv.InvokeModelJSON(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "just prose", res.Output)
		assert.Equal(t, 1, rt.calls)
	})
}

func TestInvokeModelJSONConversationGrowsInOrder(t *testing.T) {
	rt := &fakeRuntime{replies: []any{
		assistantReply(t, "nope"),
		assistantReply(t, "```json\n{\"doc_type\": \"invoice\"}\n```"),
	}}
	req := newRequest("extract")
	inv := newTestInvocation(rt, req, testSchema(), 1)

	_, err := inv.InvokeModelJSON(context.Background())
	require.NoError(t, err)

	// The reprompted request body must carry the full grown conversation.
	var second bedrock.Request
	require.NoError(t, json.Unmarshal(rt.bodies[1], &second))
	assert.Len(t, second.Messages, 3)
	assert.Equal(t, bedrock.RoleUser, second.Messages[2].Role)
	assert.True(t, strings.Contains(second.Messages[2].Content[0].Text, "valid JSON"))
}

func TestInvokeEmbeddingDispatch(t *testing.T) {
	t.Run("titan family unwraps flat vector", func(t *testing.T) {
		rt := &fakeRuntime{replies: []any{
			[]byte(`{"embedding": [0.1, 0.2], "inputTextTokenCount": 5}`),
		}}
		inv := NewEmbedding(rt, map[string]any{"inputText": "hello"}, Config{
			ModelID:        constants.TitanEmbedMMV1,
			MaxRetries:     1,
			InitialBackoff: time.Millisecond,
		}, testLogger())
		out, err := inv.InvokeEmbedding(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []float64{0.1, 0.2}, out)
	})
	t.Run("other families return the envelope unchanged", func(t *testing.T) {
		rt := &fakeRuntime{replies: []any{
			[]byte(`{"embeddings": [[0.1], [0.2]], "id": "abc"}`),
		}}
		inv := NewEmbedding(rt, map[string]any{"texts": []string{"a", "b"}}, Config{
			ModelID:        constants.CohereEmbedEnglish,
			MaxRetries:     1,
			InitialBackoff: time.Millisecond,
		}, testLogger())
		out, err := inv.InvokeEmbedding(context.Background())
		require.NoError(t, err)
		envelope, ok := out.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "abc", envelope["id"])
		assert.Contains(t, envelope, "embeddings")
	})
}

func TestInvokeModelJSONMisuseWithoutRequest(t *testing.T) {
	inv := NewEmbedding(&fakeRuntime{}, map[string]any{"inputText": "x"}, Config{
		ModelID: constants.TitanEmbedMMV1,
	}, testLogger())
	_, err := inv.InvokeModelJSON(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conversational request body")
}

func ExampleInvocation_InvokeModelJSON() {
	rt := &fakeRuntime{replies: []any{
		assistantReplyForExample("```json\n{\"doc_type\": \"invoice\"}\n```"),
	}}
	inv := New(rt, newRequest("classify"), Config{
		ModelID:         constants.ClaudeV3Haiku,
		RepromptRetries: 1,
	}, testLogger())
	res, _ := inv.InvokeModelJSON(context.Background())
	out, _ := json.Marshal(res.Output)
	fmt.Println(string(out))
	// Output: {"doc_type":"invoice"}
}

func assistantReplyForExample(text string) []byte {
	b, _ := json.Marshal(bedrock.Response{
		Role:    bedrock.RoleAssistant,
		Content: []bedrock.ContentBlock{{Type: "text", Text: text}},
		Usage:   bedrock.Usage{InputTokens: 1, OutputTokens: 1},
	})
	return b
}
