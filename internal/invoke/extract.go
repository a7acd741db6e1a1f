package invoke

import (
	"encoding/json"
	"regexp"
)

// Models are asked to wrap their JSON answer in a fenced code block.
// jsonBlockRe matches blocks fenced as ```json or with no label at all;
// codeBlockRe matches any fenced block regardless of label.
var (
	jsonBlockRe = regexp.MustCompile("```(?:json)?\n([\\s\\S]*?)\n```")
	codeBlockRe = regexp.MustCompile("```([\\s\\S]*?)\n```")
)

// extractJSON scans response text for fenced code blocks and returns the
// first one that parses as strict JSON, in document order. Blocks fenced
// as json (or unlabeled) are tried first; only when none of those parse
// does the scan widen to every fenced block. Later valid blocks are
// ignored — documents typically contain one JSON answer block.
func extractJSON(text string) (any, bool) {
	if v, ok := firstParsed(jsonBlockRe, text); ok {
		return v, true
	}
	return firstParsed(codeBlockRe, text)
}

func firstParsed(re *regexp.Regexp, text string) (any, bool) {
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		var v any
		if err := json.Unmarshal([]byte(m[1]), &v); err == nil {
			return v, true
		}
	}
	return nil, false
}
