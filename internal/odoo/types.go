package odoo

import (
	"encoding/json"
	"fmt"
)

// Record is a single backend record: field name to opaque value. The
// connection layer performs no type coercion; values pass through as the
// backend sent them.
type Record map[string]any

// FieldMeta describes one field of a model, as returned by fields_get.
type FieldMeta struct {
	Type     string `json:"type"`
	Label    string `json:"string"`
	Help     string `json:"help,omitempty"`
	Required bool   `json:"required"`
	Readonly bool   `json:"readonly"`
	Relation string `json:"relation,omitempty"`
}

// Version holds backend server version information.
type Version struct {
	ServerVersion   string `json:"server_version"`
	ServerSerie     string `json:"server_serie,omitempty"`
	ProtocolVersion int    `json:"protocol_version,omitempty"`
}

// SearchOptions carries the optional paging and ordering arguments for
// Search and SearchRead. The zero value means backend defaults.
type SearchOptions struct {
	Limit  int
	Offset int
	Order  string
}

// Term is one element of a domain expression: either a logical operator
// token ("&", "|", "!") or a [field, operator, value] condition triple.
type Term struct {
	logic    string
	Field    string
	Operator string
	Value    any
}

// Cond builds a condition term.
func Cond(field, operator string, value any) Term {
	return Term{Field: field, Operator: operator, Value: value}
}

// Logic builds a logical operator term ("&", "|", "!").
func Logic(op string) Term {
	return Term{logic: op}
}

// IsLogic reports whether the term is a logical operator token.
func (t Term) IsLogic() bool { return t.logic != "" }

// Logical returns the logical operator token, or "" for a condition term.
func (t Term) Logical() string { return t.logic }

// wire returns the term in Odoo wire shape: a bare string for logical
// operators, a three-element array for conditions.
func (t Term) wire() any {
	if t.logic != "" {
		return t.logic
	}
	return []any{t.Field, t.Operator, t.Value}
}

// MarshalJSON emits the Odoo wire shape.
func (t Term) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.wire())
}

// UnmarshalJSON accepts either a logical operator string or a
// [field, operator, value] array.
func (t *Term) UnmarshalJSON(data []byte) error {
	var logic string
	if err := json.Unmarshal(data, &logic); err == nil {
		switch logic {
		case "&", "|", "!":
			*t = Term{logic: logic}
			return nil
		default:
			return fmt.Errorf("odoo: invalid logical operator %q", logic)
		}
	}

	var triple []json.RawMessage
	if err := json.Unmarshal(data, &triple); err != nil {
		return fmt.Errorf("odoo: domain term must be a string or array: %w", err)
	}
	if len(triple) != 3 {
		return fmt.Errorf("odoo: domain condition must have 3 elements, got %d", len(triple))
	}

	var field, operator string
	if err := json.Unmarshal(triple[0], &field); err != nil {
		return fmt.Errorf("odoo: domain field must be a string: %w", err)
	}
	if err := json.Unmarshal(triple[1], &operator); err != nil {
		return fmt.Errorf("odoo: domain operator must be a string: %w", err)
	}
	var value any
	if err := json.Unmarshal(triple[2], &value); err != nil {
		return err
	}

	*t = Term{Field: field, Operator: operator, Value: value}
	return nil
}

// Domain is a structured record filter: a sequence of terms in Odoo prefix
// notation. A plain list of conditions is an implicit conjunction. Both
// dialects accept the same grammar and translate it to their wire formats.
type Domain []Term

// validOperators is the set of comparison operators accepted in conditions.
var validOperators = map[string]struct{}{
	"=": {}, "!=": {}, ">": {}, ">=": {}, "<": {}, "<=": {},
	"like": {}, "not like": {}, "ilike": {}, "not ilike": {},
	"=like": {}, "=ilike": {},
	"in": {}, "not in": {},
	"child_of": {}, "parent_of": {},
}

// Validate checks every condition uses a known operator and a non-empty
// field name.
func (d Domain) Validate() error {
	for _, t := range d {
		if t.IsLogic() {
			continue
		}
		if t.Field == "" {
			return fmt.Errorf("odoo: domain condition has empty field")
		}
		if _, ok := validOperators[t.Operator]; !ok {
			return fmt.Errorf("odoo: unsupported domain operator %q", t.Operator)
		}
	}
	return nil
}

// Wire returns the domain in the positional wire shape both dialects send:
// a list whose elements are operator strings or three-element arrays.
func (d Domain) Wire() []any {
	out := make([]any, len(d))
	for i, t := range d {
		out[i] = t.wire()
	}
	return out
}
