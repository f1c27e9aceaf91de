package brokerage

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// DecodeRecords decodes a response body that is either a bare JSON array of
// records or an object carrying the array under "results".
// Numbers are kept as json.Number so decimals survive unchanged.
func DecodeRecords(data []byte) ([]RawRecord, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return []RawRecord{}, nil
	}

	var payload any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode records: %w", err)
	}

	switch v := payload.(type) {
	case []any:
		return toRecords(v)
	case map[string]any:
		results, ok := v["results"]
		if !ok || results == nil {
			return []RawRecord{}, nil
		}
		list, ok := results.([]any)
		if !ok {
			return nil, fmt.Errorf("results envelope holds %T, want array", results)
		}
		return toRecords(list)
	default:
		return nil, fmt.Errorf("unexpected records payload %T", payload)
	}
}

// DecodeRecord decodes a single JSON object.
func DecodeRecord(data []byte) (RawRecord, error) {
	var rec map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&rec); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	return RawRecord(rec), nil
}

func toRecords(list []any) ([]RawRecord, error) {
	records := make([]RawRecord, 0, len(list))
	for i, item := range list {
		if item == nil {
			continue
		}
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("record %d is %T, want object", i, item)
		}
		records = append(records, RawRecord(m))
	}
	return records, nil
}
