package constants

// ModelID identifies a Bedrock foundation model.
type ModelID string

// Language models supported for generation.
const (
	ClaudeV3Haiku   ModelID = "anthropic.claude-3-haiku-20240307-v1:0"
	ClaudeV3Sonnet  ModelID = "anthropic.claude-3-sonnet-20240229-v1:0"
	ClaudeV3Opus    ModelID = "anthropic.claude-3-opus-20240229-v1:0"
	ClaudeV35Sonnet ModelID = "anthropic.claude-3-5-sonnet-20240620-v1:0"
)

// Embedding models supported for vector generation.
const (
	TitanEmbedMMV1     ModelID = "amazon.titan-embed-image-v1"
	TitanEmbedTextV2   ModelID = "amazon.titan-embed-text-v2:0"
	CohereEmbedEnglish ModelID = "cohere.embed-english-v3"
	CohereEmbedMulti   ModelID = "cohere.embed-multilingual-v3"
)

// IsFlatVectorEmbedding reports whether the model returns a single flat
// vector under the "embedding" key of the response body. Titan models do;
// Cohere models return the full envelope (a list of vectors for
// multi-input requests). Unwrapping is dispatched on the model identifier,
// never on the response shape.
func IsFlatVectorEmbedding(id ModelID) bool {
	switch id {
	case TitanEmbedMMV1, TitanEmbedTextV2:
		return true
	default:
		return false
	}
}
