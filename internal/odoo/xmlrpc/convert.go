package xmlrpc

import (
	"github.com/pantalytics/odoo-mcp-pro/internal/odoo"
)

// Conversion helpers for the dynamically-typed replies the XML-RPC
// decoder produces. Odoo idiosyncrasy: empty string and null values come
// back as boolean false, so string extraction tolerates bool.

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

func toInt64Slice(v any) ([]int64, bool) {
	items, ok := v.([]any)
	if !ok {
		return nil, false
	}
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		id, ok := toInt64(item)
		if !ok {
			return nil, false
		}
		ids = append(ids, id)
	}
	return ids, true
}

func toRecords(v any) ([]odoo.Record, bool) {
	items, ok := v.([]any)
	if !ok {
		return nil, false
	}
	records := make([]odoo.Record, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, false
		}
		records = append(records, odoo.Record(m))
	}
	return records, true
}

func toFieldMeta(v any) (map[string]odoo.FieldMeta, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	fields := make(map[string]odoo.FieldMeta, len(m))
	for name, raw := range m {
		attrs, ok := raw.(map[string]any)
		if !ok {
			return nil, false
		}
		fields[name] = odoo.FieldMeta{
			Type:     toStr(attrs["type"]),
			Label:    toStr(attrs["string"]),
			Help:     toStr(attrs["help"]),
			Required: toBool(attrs["required"]),
			Readonly: toBool(attrs["readonly"]),
			Relation: toStr(attrs["relation"]),
		}
	}
	return fields, true
}

func toStr(v any) string {
	s, _ := v.(string)
	return s
}

func toBool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case int64:
		return b != 0
	case int:
		return b != 0
	default:
		return false
	}
}
