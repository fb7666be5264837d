// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package jsonapi models JSON:API response documents and the transformations
// cmsproxy applies to them before they reach a client: link masking,
// embedding of included resources and envelope cleaning.
package jsonapi

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Top-level member names of a JSON:API document.
const (
	MemberData     = "data"
	MemberIncluded = "included"
	MemberLinks    = "links"
	MemberMeta     = "meta"
)

// Resource is a JSON:API resource object or resource identifier.
type Resource map[string]any

// Type returns the resource type, or "" when absent.
func (r Resource) Type() string {
	return scalarString(r["type"])
}

// ID returns the resource id, or "" when absent.
func (r Resource) ID() string {
	return scalarString(r["id"])
}

// Attributes returns the attributes member when it is an object.
func (r Resource) Attributes() map[string]any {
	attrs, _ := r["attributes"].(map[string]any)
	return attrs
}

// Relationships returns the relationships member when it is an object.
func (r Resource) Relationships() map[string]any {
	rels, _ := r["relationships"].(map[string]any)
	return rels
}

// PrimaryData is the "data" member of a document: either a single resource
// (possibly null) or a collection. The shape is fixed when the value is built.
type PrimaryData struct {
	single     Resource
	many       []Resource
	collection bool
}

// Single wraps one resource. A nil resource encodes as null.
func Single(r Resource) *PrimaryData {
	return &PrimaryData{single: r}
}

// Collection wraps a list of resources.
func Collection(rs []Resource) *PrimaryData {
	if rs == nil {
		rs = []Resource{}
	}
	return &PrimaryData{many: rs, collection: true}
}

// IsCollection reports whether the data is a list of resources.
func (d *PrimaryData) IsCollection() bool {
	return d != nil && d.collection
}

// Resource returns the single resource, or nil for collections and null data.
func (d *PrimaryData) Resource() Resource {
	if d == nil || d.collection {
		return nil
	}
	return d.single
}

// Resources returns every resource in the data, in order.
func (d *PrimaryData) Resources() []Resource {
	switch {
	case d == nil:
		return nil
	case d.collection:
		return d.many
	case d.single == nil:
		return nil
	default:
		return []Resource{d.single}
	}
}

// Len returns the number of resources.
func (d *PrimaryData) Len() int {
	return len(d.Resources())
}

// MarshalJSON implements json.Marshaler.
func (d *PrimaryData) MarshalJSON() ([]byte, error) {
	if d.collection {
		return json.Marshal(d.many)
	}
	if d.single == nil {
		return []byte("null"), nil
	}
	return json.Marshal(d.single)
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *PrimaryData) UnmarshalJSON(raw []byte) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return fmt.Errorf("empty primary data")
	}
	switch trimmed[0] {
	case '[':
		var many []Resource
		if err := decode(trimmed, &many); err != nil {
			return err
		}
		*d = *Collection(many)
	case 'n':
		*d = PrimaryData{}
	case '{':
		var single Resource
		if err := decode(trimmed, &single); err != nil {
			return err
		}
		*d = PrimaryData{single: single}
	default:
		return fmt.Errorf("primary data must be an object, an array or null")
	}
	return nil
}

func (d *PrimaryData) clone() *PrimaryData {
	if d == nil {
		return nil
	}
	if d.collection {
		many := make([]Resource, len(d.many))
		for i, r := range d.many {
			many[i] = cloneResource(r)
		}
		return &PrimaryData{many: many, collection: true}
	}
	return &PrimaryData{single: cloneResource(d.single)}
}

// Document is a JSON:API top-level document. Members other than data,
// included, links and meta are preserved in Extra.
type Document struct {
	Data     *PrimaryData
	Included []Resource
	Links    map[string]any
	Meta     map[string]any
	Extra    map[string]any
}

// Parse decodes a JSON:API document. Numbers are kept as json.Number.
func Parse(raw []byte) (*Document, error) {
	doc := &Document{}
	if err := json.Unmarshal(raw, doc); err != nil {
		return nil, fmt.Errorf("failed to parse JSON:API document: %w", err)
	}
	return doc, nil
}

// MarshalJSON implements json.Marshaler. Members that were never set are omitted.
func (doc *Document) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(doc.Extra)+4)
	for k, v := range doc.Extra {
		out[k] = v
	}
	if doc.Data != nil {
		out[MemberData] = doc.Data
	}
	if doc.Included != nil {
		out[MemberIncluded] = doc.Included
	}
	if doc.Links != nil {
		out[MemberLinks] = doc.Links
	}
	if doc.Meta != nil {
		out[MemberMeta] = doc.Meta
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (doc *Document) UnmarshalJSON(raw []byte) error {
	var members map[string]json.RawMessage
	if err := json.Unmarshal(raw, &members); err != nil {
		return err
	}
	*doc = Document{}
	for name, value := range members {
		var err error
		switch name {
		case MemberData:
			doc.Data = &PrimaryData{}
			err = doc.Data.UnmarshalJSON(value)
		case MemberIncluded:
			err = decode(value, &doc.Included)
		case MemberLinks:
			err = decode(value, &doc.Links)
		case MemberMeta:
			err = decode(value, &doc.Meta)
		default:
			var v any
			if err = decode(value, &v); err == nil {
				if doc.Extra == nil {
					doc.Extra = map[string]any{}
				}
				doc.Extra[name] = v
			}
		}
		if err != nil {
			return fmt.Errorf("member %q: %w", name, err)
		}
	}
	return nil
}

// Clone returns a deep copy of the document.
func (doc *Document) Clone() *Document {
	if doc == nil {
		return nil
	}
	out := &Document{
		Data:  doc.Data.clone(),
		Links: cloneMap(doc.Links),
		Meta:  cloneMap(doc.Meta),
		Extra: cloneMap(doc.Extra),
	}
	if doc.Included != nil {
		out.Included = make([]Resource, len(doc.Included))
		for i, r := range doc.Included {
			out.Included[i] = cloneResource(r)
		}
	}
	return out
}

// MetaString returns a string member of meta, such as "jwt".
func (doc *Document) MetaString(key string) string {
	if doc == nil {
		return ""
	}
	s, _ := doc.Meta[key].(string)
	return s
}

func decode(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(v)
}

func scalarString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case json.Number:
		return s.String()
	default:
		return fmt.Sprint(s)
	}
}
