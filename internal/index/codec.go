package index

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// decode parses an index array. Entries that fail to decode or carry an empty id
// are dropped and counted.
func decode[T Record](content []byte) ([]T, int, error) {
	content = bytes.TrimSpace(content)
	if len(content) == 0 {
		return []T{}, 0, nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(content, &raw); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	out := make([]T, 0, len(raw))
	dropped := 0
	for _, item := range raw {
		var rec T
		if err := json.Unmarshal(item, &rec); err != nil || rec.Key() == "" {
			dropped++
			continue
		}
		out = append(out, rec)
	}
	return out, dropped, nil
}

func encode[T Record](records []T) ([]byte, error) {
	if records == nil {
		records = []T{}
	}
	return json.MarshalIndent(records, "", "  ")
}
