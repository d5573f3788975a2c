package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/fieldnode/internal/model"
)

// marshalStrings converts a string list to JSON TEXT for storage.
// A nil list is stored as "[]" so reads always return a non-nil slice.
func marshalStrings(list []string) (string, error) {
	if list == nil {
		list = []string{}
	}
	data, err := json.Marshal(list)
	if err != nil {
		return "", fmt.Errorf("marshal strings: %w", err)
	}
	return string(data), nil
}

// unmarshalStrings parses JSON TEXT into a non-nil string list.
func unmarshalStrings(data string) ([]string, error) {
	list := []string{}
	if data == "" || data == "[]" {
		return list, nil
	}
	if err := json.Unmarshal([]byte(data), &list); err != nil {
		return nil, fmt.Errorf("unmarshal strings: %w", err)
	}
	return list, nil
}

// marshalMetadata converts audit metadata to JSON TEXT.
// Only scalar values are accepted. HTML escaping is disabled so stored
// text matches what was logged.
func marshalMetadata(m map[string]any) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	for k, v := range m {
		switch v.(type) {
		case string, bool, int, int32, int64, uint, uint32, uint64, float32, float64, nil:
		default:
			return "", fmt.Errorf("marshal metadata: key %q has non-scalar value of type %T", k, v)
		}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(m); err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}
	// Encoder adds a trailing newline, remove it
	return strings.TrimSpace(buf.String()), nil
}

// unmarshalMetadata parses JSON TEXT into audit metadata.
// Integral numbers decode as int64, others as float64.
func unmarshalMetadata(data string) (map[string]any, error) {
	out := map[string]any{}
	if data == "" || data == "{}" {
		return out, nil
	}

	dec := json.NewDecoder(strings.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	for k, v := range raw {
		if n, ok := v.(json.Number); ok {
			if i, err := n.Int64(); err == nil {
				out[k] = i
				continue
			}
			f, err := n.Float64()
			if err != nil {
				return nil, fmt.Errorf("unmarshal metadata: key %q: %w", k, err)
			}
			out[k] = f
			continue
		}
		out[k] = v
	}
	return out, nil
}

// marshalObservation converts an observation snapshot to JSON TEXT.
func marshalObservation(obs model.Observation) (string, error) {
	obs = normalizeObservation(obs)
	data, err := json.Marshal(obs)
	if err != nil {
		return "", fmt.Errorf("marshal observation: %w", err)
	}
	return string(data), nil
}

// unmarshalObservation parses an observation snapshot.
func unmarshalObservation(data string) (model.Observation, error) {
	var obs model.Observation
	if err := json.Unmarshal([]byte(data), &obs); err != nil {
		return model.Observation{}, fmt.Errorf("unmarshal observation: %w", err)
	}
	return normalizeObservation(obs), nil
}

// normalizeObservation replaces nil lists with empty ones so snapshots
// serialize as [] rather than null.
func normalizeObservation(obs model.Observation) model.Observation {
	if obs.Tags == nil {
		obs.Tags = []string{}
	}
	if obs.MediaIDs == nil {
		obs.MediaIDs = []string{}
	}
	return obs
}
