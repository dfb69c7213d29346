package schema

import "encoding/json"

// InstanceIDFromOutput extracts the instance id from a start command's
// output payload. The payload is otherwise opaque to the executor.
func InstanceIDFromOutput(output json.RawMessage) (InstanceID, error) {
	if len(output) == 0 {
		return "", &ParseError{What: "start output"}
	}
	var payload struct {
		InstanceID InstanceID `json:"instanceId"`
	}
	if err := json.Unmarshal(output, &payload); err != nil {
		return "", &ParseError{What: "start output", Err: err}
	}
	if payload.InstanceID == "" {
		return "", &ParseError{What: "start output"}
	}
	return payload.InstanceID, nil
}

// ContentBlocksFromOutput extracts an opaque content-block list from an
// invocation output payload, when the payload has that shape.
func ContentBlocksFromOutput(output json.RawMessage) ([]json.RawMessage, bool) {
	if len(output) == 0 {
		return nil, false
	}
	var payload struct {
		Content []json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(output, &payload); err != nil {
		return nil, false
	}
	if payload.Content == nil {
		return nil, false
	}
	return payload.Content, true
}
