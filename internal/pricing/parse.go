package pricing

import (
	"encoding/json"
	"errors"
	"strings"
)

var errNoJSON = errors.New("no JSON object in response")

type aiResponse struct {
	Price          *float64 `json:"price"`
	ConditionScore *float64 `json:"conditionScore"`
	Confidence     *float64 `json:"confidence"`
	Explanation    string   `json:"explanation"`
}

// parseResponse reads the provider text as JSON, and failing that the first
// complete {...} object inside it. Trailing prose is ignored.
func parseResponse(text string) (aiResponse, error) {
	var out aiResponse
	trimmed := strings.TrimSpace(text)
	if err := json.Unmarshal([]byte(trimmed), &out); err == nil {
		return out, nil
	}

	lastErr := errNoJSON
	for i := strings.IndexByte(trimmed, '{'); i >= 0; {
		out = aiResponse{}
		err := json.NewDecoder(strings.NewReader(trimmed[i:])).Decode(&out)
		if err == nil {
			return out, nil
		}
		lastErr = err
		next := strings.IndexByte(trimmed[i+1:], '{')
		if next < 0 {
			break
		}
		i += next + 1
	}
	return aiResponse{}, lastErr
}
