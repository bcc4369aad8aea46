package tools

import (
	"encoding/json"
	"fmt"
)

// Result is the uniform envelope every tool returns. Message is always
// a human-readable summary suitable for inclusion in an agent's final
// response, so callers never need tool-specific formatting.
type Result struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
	Message string      `json:"message"`
}

// OK builds a success Result.
func OK(data interface{}, format string, args ...interface{}) Result {
	return Result{Success: true, Data: data, Message: fmt.Sprintf(format, args...)}
}

// Fail builds a failure Result. Failures are values, not errors: they
// travel back into the model's transcript as ordinary tool results.
func Fail(format string, args ...interface{}) Result {
	return Result{Success: false, Data: nil, Message: fmt.Sprintf(format, args...)}
}

// FailWithData builds a failure Result carrying guidance data, such as
// the list of valid names after a failed lookup.
func FailWithData(data interface{}, format string, args ...interface{}) Result {
	return Result{Success: false, Data: data, Message: fmt.Sprintf(format, args...)}
}

// Encode renders the Result as JSON for a transcript tool-result entry.
func (r Result) Encode() string {
	raw, err := json.Marshal(r)
	if err != nil {
		// Data carried something unmarshalable; keep the envelope shape
		fallback := Result{Success: r.Success, Message: r.Message}
		raw, _ = json.Marshal(fallback)
	}
	return string(raw)
}
