package bedrock

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

// Runtime is the transport consumed by the invocation engine. Invoke runs
// a blocking model call and returns the raw response body; InvokeStream
// opens a streaming call and returns a reader over raw chunk payloads.
type Runtime interface {
	Invoke(ctx context.Context, modelID string, body []byte) ([]byte, error)
	InvokeStream(ctx context.Context, modelID string, body []byte) (ChunkReader, error)
}

// ChunkReader yields the raw payload bytes of successive stream chunks.
// Next returns io.EOF once the stream is exhausted. The reader is
// single-pass; Close releases the underlying stream.
type ChunkReader interface {
	Next() ([]byte, error)
	Close() error
}

// Client implements Runtime over the Bedrock Runtime service.
type Client struct {
	api *bedrockruntime.Client
	log *slog.Logger
}

// NewClient creates a Bedrock runtime client using the default AWS
// credential chain for the given region.
func NewClient(ctx context.Context, region string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &Client{
		api: bedrockruntime.NewFromConfig(cfg),
		log: logger,
	}, nil
}

// Invoke runs a blocking InvokeModel call.
func (c *Client) Invoke(ctx context.Context, modelID string, body []byte) ([]byte, error) {
	out, err := c.api.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(modelID),
		Body:        body,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		return nil, err
	}
	return out.Body, nil
}

// InvokeStream opens an InvokeModelWithResponseStream call.
func (c *Client) InvokeStream(ctx context.Context, modelID string, body []byte) (ChunkReader, error) {
	out, err := c.api.InvokeModelWithResponseStream(ctx, &bedrockruntime.InvokeModelWithResponseStreamInput{
		ModelId:     aws.String(modelID),
		Body:        body,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		return nil, err
	}
	return &sdkChunkReader{stream: out.GetStream(), log: c.log}, nil
}

type sdkChunkReader struct {
	stream *bedrockruntime.InvokeModelWithResponseStreamEventStream
	log    *slog.Logger
}

func (r *sdkChunkReader) Next() ([]byte, error) {
	for ev := range r.stream.Events() {
		switch v := ev.(type) {
		case *types.ResponseStreamMemberChunk:
			return v.Value.Bytes, nil
		default:
			// Non-chunk stream members carry no payload for us.
			r.log.Debug("bedrock.stream.skip_member", "member", fmt.Sprintf("%T", ev))
		}
	}
	if err := r.stream.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

func (r *sdkChunkReader) Close() error {
	return r.stream.Close()
}

// IsThrottling reports whether err is the service's rate-limiting signal.
// Only throttling is transient and worth retrying; auth failures,
// malformed requests and service faults are not.
func IsThrottling(err error) bool {
	var te *types.ThrottlingException
	return errors.As(err, &te)
}
