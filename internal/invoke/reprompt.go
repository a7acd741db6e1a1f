package invoke

import (
	"encoding/json"

	"github.com/docstruct-ai/docstruct/internal/bedrock"
)

// repromptMessage builds the corrective user turn appended when the model
// produced missing or non-conformant JSON. The schema is re-embedded so
// the model does not have to scroll back for it.
func repromptMessage(schema map[string]any) bedrock.Message {
	doc, _ := json.Marshal(schema)
	text := "The response generated by you is either incomplete or is an invalid JSON that doesn't conform with the provided schema.\n" +
		"- Analyze the document page(s), think step-by-step, and retry extracting the values specified in the JSON schema.\n" +
		"- Make sure to respond only with a valid JSON wrapped in three backticks.\n" +
		"<schema>\n" + string(doc) + "\n</schema>"
	return bedrock.Message{
		Role:    bedrock.RoleUser,
		Content: []bedrock.ContentBlock{{Type: "text", Text: text}},
	}
}
