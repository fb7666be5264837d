// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package jsonapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cleanFixture = `{
	"data": [{
		"type": "documents", "id": "1",
		"attributes": {"title": "x", "extra": {"links": ["user content"]}},
		"links": {"self": "/documents/1"},
		"relationships": {"author": {"links": {"related": "/documents/1/author"}, "data": {"type": "users", "id": "9"}}}
	}],
	"included": [{"type": "users", "id": "9", "links": {"self": "/users/9"}}],
	"links": {"self": "/documents"},
	"meta": {"schema": {"$id": "/model/schema"}, "pagination": {"count": 1}}
}`

func TestClean_Sections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		sections []Section
		want     string
	}{
		{
			name:     "included",
			sections: []Section{SectionIncluded},
			want: `{
				"data": [{"type":"documents","id":"1","attributes":{"title":"x","extra":{"links":["user content"]}},
					"links":{"self":"/documents/1"},
					"relationships":{"author":{"links":{"related":"/documents/1/author"},"data":{"type":"users","id":"9"}}}}],
				"links": {"self":"/documents"},
				"meta": {"schema":{"$id":"/model/schema"},"pagination":{"count":1}}
			}`,
		},
		{
			name:     "schema",
			sections: []Section{SectionSchema},
			want: `{
				"data": [{"type":"documents","id":"1","attributes":{"title":"x","extra":{"links":["user content"]}},
					"links":{"self":"/documents/1"},
					"relationships":{"author":{"links":{"related":"/documents/1/author"},"data":{"type":"users","id":"9"}}}}],
				"included": [{"type":"users","id":"9","links":{"self":"/users/9"}}],
				"links": {"self":"/documents"},
				"meta": {"pagination":{"count":1}}
			}`,
		},
		{
			name:     "links everywhere including attributes",
			sections: []Section{SectionLinks},
			want: `{
				"data": [{"type":"documents","id":"1","attributes":{"title":"x","extra":{}},
					"relationships":{"author":{"data":{"type":"users","id":"9"}}}}],
				"included": [{"type":"users","id":"9"}],
				"meta": {"schema":{"$id":"/model/schema"},"pagination":{"count":1}}
			}`,
		},
		{
			name:     "relationships",
			sections: []Section{SectionRelationships},
			want: `{
				"data": [{"type":"documents","id":"1","attributes":{"title":"x","extra":{"links":["user content"]}},
					"links":{"self":"/documents/1"}}],
				"included": [{"type":"users","id":"9","links":{"self":"/users/9"}}],
				"links": {"self":"/documents"},
				"meta": {"schema":{"$id":"/model/schema"},"pagination":{"count":1}}
			}`,
		},
		{
			name: "default is everything",
			want: `{
				"data": [{"type":"documents","id":"1","attributes":{"title":"x","extra":{}}}],
				"meta": {"pagination":{"count":1}}
			}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			doc := mustParse(t, cleanFixture)
			assert.JSONEq(t, tt.want, mustJSON(t, Clean(doc, tt.sections...)))
			assert.JSONEq(t, cleanFixture, mustJSON(t, doc))
		})
	}
}

func TestClean_Composable(t *testing.T) {
	t.Parallel()

	doc := mustParse(t, cleanFixture)

	stepwise := Clean(Clean(doc, SectionIncluded), SectionLinks)
	together := Clean(doc, SectionIncluded, SectionLinks)
	reversed := Clean(Clean(doc, SectionLinks), SectionIncluded)

	assert.JSONEq(t, mustJSON(t, together), mustJSON(t, stepwise))
	assert.JSONEq(t, mustJSON(t, together), mustJSON(t, reversed))
}

func TestParseSection(t *testing.T) {
	t.Parallel()

	s, err := ParseSection("links")
	require.NoError(t, err)
	assert.Equal(t, SectionLinks, s)

	_, err = ParseSection("attributes")
	assert.Error(t, err)
}
