package store

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// mergeDocument applies a PATCH to a stored patient document: every top-level
// key of patch replaces the stored one, keys listed in remove are dropped and
// every other key is kept as stored. A missing or unreadable document is
// treated as empty.
func mergeDocument(doc []byte, patch any, remove ...string) ([]byte, error) {
	fields := map[string]json.RawMessage{}
	if trimmed := bytes.TrimSpace(doc); len(trimmed) > 0 {
		if err := json.Unmarshal(trimmed, &fields); err != nil || fields == nil {
			fields = map[string]json.RawMessage{}
		}
	}

	if patch != nil {
		data, err := json.Marshal(patch)
		if err != nil {
			return nil, fmt.Errorf("encode patch: %w", err)
		}
		var set map[string]json.RawMessage
		if err := json.Unmarshal(data, &set); err != nil {
			return nil, fmt.Errorf("patch is not an object: %w", err)
		}
		for k, v := range set {
			fields[k] = v
		}
	}
	for _, k := range remove {
		delete(fields, k)
	}
	return json.Marshal(fields)
}

type pendingFeedbackPatch struct {
	PendingFeedback any `json:"pendingFeedback"`
}

// pendingFeedbackID returns the ID of the feedback waiting in doc, if any.
func pendingFeedbackID(doc []byte) string {
	var d struct {
		PendingFeedback *struct {
			ID string `json:"id"`
		} `json:"pendingFeedback"`
	}
	if err := json.Unmarshal(doc, &d); err != nil || d.PendingFeedback == nil {
		return ""
	}
	return d.PendingFeedback.ID
}
