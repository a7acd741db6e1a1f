package bedrock

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponseText(t *testing.T) {
	r := Response{Content: []ContentBlock{
		{Type: "tool_use"},
		{Type: "text", Text: "hello"},
		{Type: "text", Text: "ignored"},
	}}
	assert.Equal(t, "hello", r.Text())
	assert.Equal(t, "", (&Response{}).Text())
}

func TestStreamEventDecoding(t *testing.T) {
	raw := []byte(`{"type": "message_stop", "amazon-bedrock-invocationMetrics": {"inputTokenCount": 7, "outputTokenCount": 3, "invocationLatency": 901, "firstByteLatency": 120}}`)
	var ev StreamEvent
	require.NoError(t, json.Unmarshal(raw, &ev))
	assert.Equal(t, EventMessageStop, ev.Type)
	require.NotNil(t, ev.Metrics)
	assert.Equal(t, 7, ev.Metrics.InputTokenCount)
	assert.Equal(t, 3, ev.Metrics.OutputTokenCount)
}

func TestIsThrottling(t *testing.T) {
	te := &types.ThrottlingException{Message: aws.String("slow down")}
	assert.True(t, IsThrottling(te))
	assert.True(t, IsThrottling(fmt.Errorf("invoke: %w", te)))
	assert.False(t, IsThrottling(errors.New("access denied")))
	assert.False(t, IsThrottling(nil))
}
