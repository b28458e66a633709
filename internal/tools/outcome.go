// ABOUTME: Invocation outcome: exactly one of a result value or an error message.
// ABOUTME: Encodes to {"result": ...} or {"error": {"message": ...}}.

package tools

import "encoding/json"

// OutcomeError is the error branch of an Outcome.
type OutcomeError struct {
	Message string `json:"message"`
}

// Outcome is the result of executing a tool. Exactly one of Result or Err is
// meaningful: when Err is non-nil the result is ignored.
type Outcome struct {
	Result any
	Err    *OutcomeError
}

// Success wraps a handler result.
func Success(result any) Outcome {
	return Outcome{Result: result}
}

// Failure wraps an error into an outcome.
func Failure(err error) Outcome {
	return Outcome{Err: &OutcomeError{Message: err.Error()}}
}

// OK reports whether the outcome is a success.
func (o Outcome) OK() bool {
	return o.Err == nil
}

// Fields returns the outcome as a map carrying either a "result" or an
// "error" key, suitable for merging into a larger payload.
func (o Outcome) Fields() map[string]any {
	if o.Err != nil {
		return map[string]any{"error": o.Err}
	}
	return map[string]any{"result": o.Result}
}

// MarshalJSON implements json.Marshaler.
func (o Outcome) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.Fields())
}
