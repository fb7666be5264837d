// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package jsonapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const (
	apiBase    = "https://api.example.com"
	publicBase = "https://www.example.com/api"
)

func TestLinkMasker_Mask(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "top-level links as strings and objects",
			in:   `{"links":{"self":"https://api.example.com/documents?page=2","next":{"href":"https://api.example.com/documents?page=3"},"prev":null}}`,
			want: `{"links":{"self":"https://www.example.com/api/documents?page=2","next":{"href":"https://www.example.com/api/documents?page=3"},"prev":null}}`,
		},
		{
			name: "schema ids and schema root",
			in:   `{"meta":{"schema":{"$id":"https://api.example.com/model/schema","documents":{"$id":"https://api.example.com/model/documents.json","type":"object"}}}}`,
			want: `{"meta":{"schema":{"$id":"https://www.example.com/api/model/schema","documents":{"$id":"https://www.example.com/api/model/documents.json","type":"object"}}}}`,
		},
		{
			name: "meta resources hrefs",
			in:   `{"meta":{"resources":[{"href":"https://api.example.com/documents","methods":["GET"]},{"name":"no-href"}]}}`,
			want: `{"meta":{"resources":[{"href":"https://www.example.com/api/documents","methods":["GET"]},{"name":"no-href"}]}}`,
		},
		{
			name: "single resource and its relationships",
			in: `{"data":{"type":"documents","id":"1",
				"links":{"self":"https://api.example.com/documents/1"},
				"attributes":{"body":"see https://api.example.com/x"},
				"relationships":{"author":{"links":{"related":"https://api.example.com/documents/1/author"}}}}}`,
			want: `{"data":{"type":"documents","id":"1",
				"links":{"self":"https://www.example.com/api/documents/1"},
				"attributes":{"body":"see https://api.example.com/x"},
				"relationships":{"author":{"links":{"related":"https://www.example.com/api/documents/1/author"}}}}}`,
		},
		{
			name: "collection masks resource links only",
			in: `{"data":[{"type":"documents","id":"1",
				"links":{"self":"https://api.example.com/documents/1"},
				"relationships":{"author":{"links":{"related":"https://api.example.com/documents/1/author"}}}}]}`,
			want: `{"data":[{"type":"documents","id":"1",
				"links":{"self":"https://www.example.com/api/documents/1"},
				"relationships":{"author":{"links":{"related":"https://api.example.com/documents/1/author"}}}}]}`,
		},
		{
			name: "non-string link values pass through",
			in:   `{"links":{"count":3,"list":["https://api.example.com/a"]}}`,
			want: `{"links":{"count":3,"list":["https://api.example.com/a"]}}`,
		},
		{
			name: "absent links stay absent",
			in:   `{"data":{"type":"documents","id":"1"}}`,
			want: `{"data":{"type":"documents","id":"1"}}`,
		},
	}

	masker := NewLinkMasker(apiBase, publicBase)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			doc := mustParse(t, tt.in)
			assert.JSONEq(t, tt.want, mustJSON(t, masker.Mask(doc)))
		})
	}
}

func TestLinkMasker_AlreadyPublicIsUnchanged(t *testing.T) {
	t.Parallel()

	raw := `{"data":{"type":"documents","id":"1","links":{"self":"https://www.example.com/api/documents/1"}},"links":{"self":"https://www.example.com/api/documents/1"}}`
	doc := mustParse(t, raw)

	out := NewLinkMasker(apiBase, publicBase).Mask(doc)

	assert.Equal(t, doc, out)
	assert.JSONEq(t, raw, mustJSON(t, out))
}

func TestLinkMasker_DoesNotModifyInput(t *testing.T) {
	t.Parallel()

	raw := `{"links":{"self":"https://api.example.com/documents"}}`
	doc := mustParse(t, raw)

	_ = NewLinkMasker(apiBase, publicBase).Mask(doc)

	assert.JSONEq(t, raw, mustJSON(t, doc))
}

func TestLinkMasker_NilDocument(t *testing.T) {
	t.Parallel()
	assert.Nil(t, NewLinkMasker(apiBase, publicBase).Mask(nil))
}
