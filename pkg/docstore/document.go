package docstore

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"sort"
)

// FieldID is the document field holding the document id
const FieldID = "id"

// Document is a schemaless record as stored in a collection. Values are
// JSON-compatible: string, float64, bool, nil, []interface{} and
// map[string]interface{}.
type Document map[string]interface{}

// ID returns the document id, or "" when unset
func (d Document) ID() string {
	return d.String(FieldID)
}

// String returns a string field, or "" when missing or not a string
func (d Document) String(field string) string {
	if d == nil {
		return ""
	}
	s, _ := d[field].(string)
	return s
}

// Clone returns a deep copy of the document
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return map[string]interface{}(Document(t).Clone())
	case Document:
		return t.Clone()
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// Encode converts a JSON-tagged struct (or map) into a Document
func Encode(v interface{}) (Document, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	return doc, nil
}

// Decode fills a JSON-tagged struct from a Document
func Decode(doc Document, out interface{}) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to decode document: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode document: %w", err)
	}
	return nil
}

// Operator is a filter comparison
type Operator string

const (
	// OpEq matches when the field equals the value
	OpEq Operator = "=="
	// OpIn matches when the field equals any element of a slice value
	OpIn Operator = "in"
	// OpContains matches when an array field contains the value
	OpContains Operator = "array-contains"
)

// Filter is a single predicate on a top-level document field
type Filter struct {
	Field string
	Op    Operator
	Value interface{}
}

// Eq builds an equality filter
func Eq(field string, value interface{}) Filter {
	return Filter{Field: field, Op: OpEq, Value: value}
}

// In builds a membership filter
func In(field string, values ...interface{}) Filter {
	return Filter{Field: field, Op: OpIn, Value: values}
}

// Contains builds an array-contains filter
func Contains(field string, value interface{}) Filter {
	return Filter{Field: field, Op: OpContains, Value: value}
}

var fieldPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate rejects unknown operators and field names that are not plain
// identifiers. Backends that render fields into query text rely on it.
func (f Filter) Validate() error {
	if !fieldPattern.MatchString(f.Field) {
		return fmt.Errorf("%w: invalid field name %q", ErrInvalidQuery, f.Field)
	}
	switch f.Op {
	case OpEq, OpContains:
		return nil
	case OpIn:
		if _, ok := f.Value.([]interface{}); !ok {
			return fmt.Errorf("%w: %q filter on %s needs a []interface{} value", ErrInvalidQuery, f.Op, f.Field)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown operator %q", ErrInvalidQuery, f.Op)
	}
}

// Query selects documents from one collection. All filters must match.
// Results are ordered by OrderBy (document id when empty).
type Query struct {
	Collection string
	Filters    []Filter
	OrderBy    string
	Descending bool
	Limit      int
}

// Where returns a copy of the query with extra filters appended
func (q Query) Where(filters ...Filter) Query {
	out := q
	out.Filters = append(append([]Filter(nil), q.Filters...), filters...)
	return out
}

// Validate checks the collection, filters and ordering field
func (q Query) Validate() error {
	if q.Collection == "" {
		return fmt.Errorf("%w: collection is required", ErrInvalidQuery)
	}
	for _, f := range q.Filters {
		if err := f.Validate(); err != nil {
			return err
		}
	}
	if q.OrderBy != "" && !fieldPattern.MatchString(q.OrderBy) {
		return fmt.Errorf("%w: invalid order field %q", ErrInvalidQuery, q.OrderBy)
	}
	if q.Limit < 0 {
		return fmt.Errorf("%w: negative limit", ErrInvalidQuery)
	}
	return nil
}

// Matches reports whether doc satisfies every filter of the query. It is
// the reference semantics the database backends translate.
func (q Query) Matches(doc Document) bool {
	for _, f := range q.Filters {
		if !f.matches(doc) {
			return false
		}
	}
	return true
}

func (f Filter) matches(doc Document) bool {
	got, ok := doc[f.Field]
	want := normalizeValue(f.Value)
	switch f.Op {
	case OpEq:
		return ok && reflect.DeepEqual(got, want)
	case OpIn:
		if !ok {
			return false
		}
		candidates, _ := want.([]interface{})
		for _, c := range candidates {
			if reflect.DeepEqual(got, c) {
				return true
			}
		}
		return false
	case OpContains:
		arr, isArr := got.([]interface{})
		if !isArr {
			return false
		}
		for _, e := range arr {
			if reflect.DeepEqual(e, want) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// normalizeValue maps a filter value to the representation a JSON
// round-trip would produce so it compares against stored documents.
func normalizeValue(v interface{}) interface{} {
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}

// sortDocuments orders docs in place per the query and applies its limit
func sortDocuments(docs []Document, q Query) []Document {
	field := q.OrderBy
	if field == "" {
		field = FieldID
	}
	sort.SliceStable(docs, func(i, j int) bool {
		a, b := fmt.Sprint(docs[i][field]), fmt.Sprint(docs[j][field])
		if q.Descending {
			return a > b
		}
		return a < b
	})
	if q.Limit > 0 && len(docs) > q.Limit {
		docs = docs[:q.Limit]
	}
	return docs
}
