package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"sitework/internal/docstore"
	"sitework/internal/events"
)

// SetField patches one field of a project document by structural path,
// materializing missing containers along the way. Writing a value the path
// already holds skips the write entirely. Payloads carrying an assignees
// list are converted to a brigade assignment before writing.
func (e Engine) SetField(ctx context.Context, projectID, path string, value any, actorID string) (OperationResult, error) {
	result := OperationResult{Result: ResultOK, ProjectID: projectID}
	if strings.TrimSpace(path) == "" {
		return result, fmt.Errorf("invalid path: path is required")
	}
	if payload, ok := value.(map[string]any); ok {
		enriched, err := e.Brigades.EnsureOnSubtaskPayload(ctx, payload, actorID)
		if err != nil {
			return result, err
		}
		value = enriched
	}
	written := false
	err := e.rewrite(ctx, docstore.Projects, projectID, func(raw json.RawMessage) (json.RawMessage, bool, error) {
		var doc map[string]any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, false, fmt.Errorf("decode project %s: %w", projectID, err)
		}
		written = false
		if cur, ok := pathGet(doc, path); ok && reflect.DeepEqual(cur, value) {
			return nil, false, nil
		}
		doc, err := pathSet(doc, path, value)
		if err != nil {
			return nil, false, err
		}
		next, err := json.Marshal(doc)
		if err != nil {
			return nil, false, err
		}
		written = true
		return next, true, nil
	})
	if errors.Is(err, docstore.ErrNotFound) {
		result.Result = ResultNotFound
		return result, nil
	}
	if err != nil {
		return result, err
	}
	if written {
		if err := e.appendEvent(ctx, "project.set_field", projectID, "project", projectID, actorID, events.EventPayload{
			"path": path,
		}); err != nil {
			return result, err
		}
	}
	return result, nil
}
