// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package jsonapi

import "strings"

// LinkMasker rewrites upstream API URLs found in well-known link members so
// that clients only ever see the public base URL.
//
// Only named paths are visited: top-level links, $id members under
// meta.schema, meta.resources[].href, the links of each primary resource and,
// for single-resource documents, the links of each relationship.
type LinkMasker struct {
	APIBaseURL    string
	PublicBaseURL string
}

// NewLinkMasker returns a masker that replaces apiBaseURL with publicBaseURL.
func NewLinkMasker(apiBaseURL, publicBaseURL string) *LinkMasker {
	return &LinkMasker{APIBaseURL: apiBaseURL, PublicBaseURL: publicBaseURL}
}

// Mask returns a masked copy of doc. The input is not modified.
func (m *LinkMasker) Mask(doc *Document) *Document {
	if doc == nil {
		return nil
	}
	out := doc.Clone()
	if m.APIBaseURL == "" || m.APIBaseURL == m.PublicBaseURL {
		return out
	}

	m.maskLinks(out.Links)

	if schema, ok := out.Meta["schema"].(map[string]any); ok {
		m.maskSchema(schema)
	}
	m.maskResourceHrefs(out.Meta["resources"])

	for _, r := range out.Data.Resources() {
		if links, ok := r["links"].(map[string]any); ok {
			m.maskLinks(links)
		}
	}

	if !out.Data.IsCollection() {
		if r := out.Data.Resource(); r != nil {
			for _, rel := range r.Relationships() {
				relation, ok := rel.(map[string]any)
				if !ok {
					continue
				}
				if links, ok := relation["links"].(map[string]any); ok {
					m.maskLinks(links)
				}
			}
		}
	}

	return out
}

func (m *LinkMasker) replace(s string) string {
	return strings.ReplaceAll(s, m.APIBaseURL, m.PublicBaseURL)
}

// maskLinks rewrites a links object whose members are URL strings or link
// objects holding URL strings.
func (m *LinkMasker) maskLinks(links map[string]any) {
	for name, value := range links {
		switch v := value.(type) {
		case string:
			links[name] = m.replace(v)
		case map[string]any:
			for k, inner := range v {
				if s, ok := inner.(string); ok {
					v[k] = m.replace(s)
				}
			}
		}
	}
}

// maskSchema rewrites the schema's own $id and the $id of each schema it lists.
func (m *LinkMasker) maskSchema(schema map[string]any) {
	if id, ok := schema["$id"].(string); ok {
		schema["$id"] = m.replace(id)
	}
	for _, value := range schema {
		sub, ok := value.(map[string]any)
		if !ok {
			continue
		}
		if id, ok := sub["$id"].(string); ok {
			sub["$id"] = m.replace(id)
		}
	}
}

func (m *LinkMasker) maskResourceHrefs(resources any) {
	maskHref := func(entry any) {
		res, ok := entry.(map[string]any)
		if !ok {
			return
		}
		if href, ok := res["href"].(string); ok {
			res["href"] = m.replace(href)
		}
	}
	switch rs := resources.(type) {
	case []any:
		for _, entry := range rs {
			maskHref(entry)
		}
	case map[string]any:
		for _, entry := range rs {
			maskHref(entry)
		}
	}
}
