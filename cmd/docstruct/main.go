package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/docstruct-ai/docstruct/constants"
	"github.com/docstruct-ai/docstruct/internal/bedrock"
	"github.com/docstruct-ai/docstruct/internal/common"
	"github.com/docstruct-ai/docstruct/internal/invoke"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	var (
		modelID    = flag.String("model", string(constants.ClaudeV35Sonnet), "Bedrock model identifier")
		schemaPath = flag.String("schema", "", "path to a JSON Schema the output must conform to")
		system     = flag.String("system", "", "system prompt")
		maxTokens  = flag.Int("max-tokens", 1024, "maximum tokens to generate")
		stream     = flag.Bool("stream", false, "stream the response text to stdout")
	)
	flag.Parse()

	prompt := strings.TrimSpace(strings.Join(flag.Args(), " "))
	if prompt == "" {
		// No args: read the prompt from stdin (supports piping documents in).
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			logger.Error("read stdin", "error", err)
			os.Exit(2)
		}
		prompt = strings.TrimSpace(string(data))
	}
	if prompt == "" {
		logger.Error("usage: docstruct [flags] <prompt, or prompt on stdin>")
		os.Exit(2)
	}

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	var schema map[string]any
	if *schemaPath != "" {
		data, err := os.ReadFile(*schemaPath)
		if err != nil {
			logger.Error("read schema", "path", *schemaPath, "error", err)
			os.Exit(2)
		}
		if err := json.Unmarshal(data, &schema); err != nil {
			logger.Error("parse schema", "path", *schemaPath, "error", err)
			os.Exit(2)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Bedrock.RequestTimeout)
	defer cancel()

	client, err := bedrock.NewClient(ctx, cfg.Bedrock.Region, logger)
	if err != nil {
		logger.Error("bedrock client", "error", err)
		os.Exit(1)
	}

	req := &bedrock.Request{
		System:    *system,
		MaxTokens: *maxTokens,
		Messages: []bedrock.Message{
			{Role: bedrock.RoleUser, Content: []bedrock.ContentBlock{{Type: "text", Text: prompt}}},
		},
	}
	inv := invoke.New(client, req, invoke.Config{
		ModelID:         constants.ModelID(*modelID),
		OutputSchema:    schema,
		MaxRetries:      cfg.Retry.MaxRetries,
		InitialBackoff:  cfg.Retry.InitialBackoff,
		RepromptRetries: cfg.Retry.RetryForIncompleteJSON,
	}, logger)

	if *stream {
		runStream(ctx, inv, logger)
		return
	}

	res, err := inv.InvokeModelJSON(ctx)
	if err != nil {
		logger.Error("invoke", "error", err)
		os.Exit(1)
	}
	if text, ok := res.Output.(string); ok && schema != nil {
		logger.Warn("structured extraction degraded to raw text")
		fmt.Println(text)
	} else {
		out, err := json.MarshalIndent(res.Output, "", "  ")
		if err != nil {
			logger.Error("encode output", "error", err)
			os.Exit(1)
		}
		fmt.Println(string(out))
	}
	logger.Info("done",
		"input_tokens", res.TokenUsage.InputTokens,
		"output_tokens", res.TokenUsage.OutputTokens,
	)
}

func runStream(ctx context.Context, inv *invoke.Invocation, logger *slog.Logger) {
	s, err := inv.InvokeModelStream(ctx)
	if err != nil {
		logger.Error("invoke stream", "error", err)
		os.Exit(1)
	}
	for s.Next() {
		item := s.Item()
		switch item.Kind {
		case invoke.KindTextChunk:
			fmt.Print(item.Text)
		case invoke.KindUsage:
			fmt.Println()
			logger.Info("done",
				"input_tokens", item.Usage.InputTokens,
				"output_tokens", item.Usage.OutputTokens,
			)
		}
	}
	if err := s.Err(); err != nil {
		logger.Error("stream", "error", err)
		os.Exit(1)
	}
}
