package docstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocument_Accessors(t *testing.T) {
	doc := Document{"id": "s1", "name": "Buffer", "count": 3.0}
	assert.Equal(t, "s1", doc.ID())
	assert.Equal(t, "Buffer", doc.String("name"))
	assert.Empty(t, doc.String("count"))
	assert.Empty(t, doc.String("missing"))

	var nilDoc Document
	assert.Empty(t, nilDoc.ID())
	assert.Nil(t, nilDoc.Clone())
}

func TestDocument_CloneIsDeep(t *testing.T) {
	doc := Document{
		"tags":  []interface{}{"a"},
		"theme": map[string]interface{}{"primary": "#fff"},
	}
	clone := doc.Clone()
	clone["tags"].([]interface{})[0] = "b"
	clone["theme"].(map[string]interface{})["primary"] = "#000"

	assert.Equal(t, "a", doc["tags"].([]interface{})[0])
	assert.Equal(t, "#fff", doc["theme"].(map[string]interface{})["primary"])
}

func TestEncodeDecode(t *testing.T) {
	type record struct {
		ID    string   `json:"id"`
		Perms []string `json:"permissions"`
	}
	doc, err := Encode(record{ID: "r1", Perms: []string{"samples.view"}})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"samples.view"}, doc["permissions"])

	var out record
	require.NoError(t, Decode(doc, &out))
	assert.Equal(t, "r1", out.ID)
	assert.Equal(t, []string{"samples.view"}, out.Perms)
}

func TestQuery_Validate(t *testing.T) {
	tests := []struct {
		name    string
		query   Query
		wantErr bool
	}{
		{"valid", Query{Collection: "samples", Filters: []Filter{Eq("laboratoryId", "lab-1")}}, false},
		{"missing collection", Query{}, true},
		{"injection in field", Query{Collection: "samples", Filters: []Filter{Eq("x' OR '1'='1", "v")}}, true},
		{"bad operator", Query{Collection: "samples", Filters: []Filter{{Field: "a", Op: ">", Value: 1}}}, true},
		{"in needs slice", Query{Collection: "samples", Filters: []Filter{{Field: "a", Op: OpIn, Value: "x"}}}, true},
		{"bad order field", Query{Collection: "samples", OrderBy: "a;drop"}, true},
		{"negative limit", Query{Collection: "samples", Limit: -1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.query.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidQuery)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestQuery_Where_DoesNotAlias(t *testing.T) {
	base := Query{Collection: "samples", Filters: make([]Filter, 1, 4)}
	base.Filters[0] = Eq("laboratoryId", "lab-1")

	a := base.Where(Eq("status", "open"))
	b := base.Where(Eq("status", "closed"))

	assert.Len(t, base.Filters, 1)
	assert.Equal(t, "open", a.Filters[1].Value)
	assert.Equal(t, "closed", b.Filters[1].Value)
}

func TestQuery_Matches(t *testing.T) {
	doc := Document{"laboratoryId": "lab-1", "count": 2.0, "tags": []interface{}{"urgent", "blood"}}

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"eq string", Eq("laboratoryId", "lab-1"), true},
		{"eq other", Eq("laboratoryId", "lab-2"), false},
		{"eq int normalizes", Eq("count", 2), true},
		{"eq missing field", Eq("absent", "x"), false},
		{"in hit", In("laboratoryId", "lab-9", "lab-1"), true},
		{"in miss", In("laboratoryId", "lab-9"), false},
		{"in empty", In("laboratoryId"), false},
		{"contains hit", Contains("tags", "blood"), true},
		{"contains miss", Contains("tags", "urine"), false},
		{"contains non-array", Contains("laboratoryId", "lab-1"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := Query{Collection: "samples", Filters: []Filter{tt.filter}}
			assert.Equal(t, tt.want, q.Matches(doc))
		})
	}
}
