// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package jsonapi

// EmbedIncluded returns a copy of doc where every relationship reference in
// the primary data is replaced by the matching resource from included. A
// reference without a match becomes an empty object. Documents without
// primary data or without included resources are returned as is.
func EmbedIncluded(doc *Document) *Document {
	if doc == nil || doc.Data.Len() == 0 || len(doc.Included) == 0 {
		return doc
	}

	index := indexIncluded(doc.Included)
	out := doc.Clone()

	for _, r := range out.Data.Resources() {
		for _, rel := range r.Relationships() {
			relation, ok := rel.(map[string]any)
			if !ok {
				continue
			}
			switch ref := relation["data"].(type) {
			case map[string]any:
				relation["data"] = index.lookup(ref)
			case []any:
				embedded := make([]any, len(ref))
				for i, item := range ref {
					identifier, ok := item.(map[string]any)
					if !ok {
						embedded[i] = item
						continue
					}
					embedded[i] = index.lookup(identifier)
				}
				relation["data"] = embedded
			}
		}
	}

	return out
}

type resourceKey struct {
	typ string
	id  string
}

type includedIndex map[resourceKey]Resource

// indexIncluded keys included resources by (type, id); the first occurrence wins.
func indexIncluded(included []Resource) includedIndex {
	index := make(includedIndex, len(included))
	for _, r := range included {
		key := resourceKey{typ: r.Type(), id: r.ID()}
		if _, exists := index[key]; !exists {
			index[key] = r
		}
	}
	return index
}

// lookup returns a detached copy so later edits never reach included.
func (idx includedIndex) lookup(identifier map[string]any) map[string]any {
	key := resourceKey{typ: scalarString(identifier["type"]), id: scalarString(identifier["id"])}
	found, ok := idx[key]
	if !ok {
		return map[string]any{}
	}
	return cloneMap(found)
}
