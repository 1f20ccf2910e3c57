package processor

import (
	"encoding/json"
	"fmt"

	"github.com/dmarx/gh-store/internal/ghcomment"
)

// Apply merges one update payload into base per spec.md section 4.5
// step 6. In append mode, each top-level key present in update
// recurses if both sides are JSON objects at that key, otherwise
// replaces wholesale (arrays and scalars always replace wholesale);
// keys absent from update are preserved from base. In replace mode,
// update entirely becomes the new state.
//
// Both modes must be idempotent against the same base (spec.md's
// at-most-once/at-least-once discussion): re-applying the same
// envelope to the same base yields the same state, since neither mode
// does anything but structural replacement.
func Apply(base, update json.RawMessage, mode ghcomment.UpdateMode) (json.RawMessage, error) {
	if mode == ghcomment.ModeReplace {
		if len(update) == 0 {
			return json.RawMessage("{}"), nil
		}
		return update, nil
	}

	var baseVal, updateVal interface{}
	if len(base) == 0 {
		base = json.RawMessage("{}")
	}
	if err := json.Unmarshal(base, &baseVal); err != nil {
		return nil, fmt.Errorf("processor: unmarshal base state: %w", err)
	}
	if len(update) == 0 {
		update = json.RawMessage("{}")
	}
	if err := json.Unmarshal(update, &updateVal); err != nil {
		return nil, fmt.Errorf("processor: unmarshal update payload: %w", err)
	}

	merged := mergeValue(baseVal, updateVal)
	b, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("processor: marshal merged state: %w", err)
	}
	return b, nil
}

// mergeValue recursively merges update into base: object keys merge
// key-by-key (recursing when both sides are objects at that key),
// everything else (arrays, scalars, type mismatches) is replaced
// wholesale by update.
func mergeValue(base, update interface{}) interface{} {
	baseObj, baseIsObj := base.(map[string]interface{})
	updateObj, updateIsObj := update.(map[string]interface{})
	if !baseIsObj || !updateIsObj {
		return update
	}

	merged := make(map[string]interface{}, len(baseObj))
	for k, v := range baseObj {
		merged[k] = v
	}
	for k, uv := range updateObj {
		if bv, ok := merged[k]; ok {
			merged[k] = mergeValue(bv, uv)
		} else {
			merged[k] = uv
		}
	}
	return merged
}
