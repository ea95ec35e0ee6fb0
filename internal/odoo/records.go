package odoo

import (
	"encoding/json"
	"fmt"
)

// OrderedRecords reorders records to match the requested ids and reports
// ids the backend did not return. Both dialects drop unknown ids silently
// on the wire; the contract requires them surfaced instead.
func OrderedRecords(model string, ids []int64, records []Record) ([]Record, error) {
	byID := make(map[int64]Record, len(records))
	for _, rec := range records {
		if id, ok := RecordID(rec); ok {
			byID[id] = rec
		}
	}

	ordered := make([]Record, 0, len(ids))
	var missing []int64
	for _, id := range ids {
		rec, ok := byID[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		ordered = append(ordered, rec)
	}

	if len(missing) > 0 {
		return ordered, fmt.Errorf("%w: %s records %v", ErrNotFound, model, missing)
	}
	return ordered, nil
}

// RecordID extracts the id field from a decoded record. The numeric type
// depends on the decoder that produced the record.
func RecordID(rec Record) (int64, bool) {
	switch v := rec["id"].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	case json.Number:
		id, err := v.Int64()
		return id, err == nil
	default:
		return 0, false
	}
}
