// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package jsonapi

import "fmt"

// Section names a part of a document that Clean can strip.
type Section string

const (
	// SectionIncluded removes the top-level included member.
	SectionIncluded Section = "included"
	// SectionSchema removes meta.schema.
	SectionSchema Section = "schema"
	// SectionLinks removes every "links" key at any depth.
	SectionLinks Section = "links"
	// SectionRelationships removes every "relationships" key at any depth.
	SectionRelationships Section = "relationships"
)

// AllSections is the default set used by Clean when none is given.
var AllSections = []Section{SectionIncluded, SectionSchema, SectionLinks, SectionRelationships}

// ParseSection validates a section name read from configuration.
func ParseSection(name string) (Section, error) {
	for _, s := range AllSections {
		if string(s) == name {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown response section %q", name)
}

// Clean returns a copy of doc without the given sections, or without all of
// them when sections is empty.
//
// Links and relationships are matched by key name anywhere in the tree,
// attribute payloads included.
func Clean(doc *Document, sections ...Section) *Document {
	if doc == nil {
		return nil
	}
	if len(sections) == 0 {
		sections = AllSections
	}

	out := doc.Clone()
	recursive := map[string]struct{}{}

	for _, s := range sections {
		switch s {
		case SectionIncluded:
			out.Included = nil
		case SectionSchema:
			if out.Meta != nil {
				delete(out.Meta, "schema")
			}
		case SectionLinks:
			out.Links = nil
			recursive[string(SectionLinks)] = struct{}{}
		case SectionRelationships:
			recursive[string(SectionRelationships)] = struct{}{}
		}
	}

	if len(recursive) == 0 {
		return out
	}
	for _, r := range out.Data.Resources() {
		removeKeys(r, recursive)
	}
	for _, r := range out.Included {
		removeKeys(r, recursive)
	}
	removeKeys(out.Meta, recursive)
	removeKeys(out.Extra, recursive)

	return out
}
