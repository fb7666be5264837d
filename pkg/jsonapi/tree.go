// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package jsonapi

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case Resource:
		return cloneResource(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case []Resource:
		out := make([]Resource, len(t))
		for i, e := range t {
			out[i] = cloneResource(e)
		}
		return out
	default:
		return v
	}
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneResource(r Resource) Resource {
	if r == nil {
		return nil
	}
	return Resource(cloneMap(r))
}

// removeKeys deletes every key in keys from m and from every object nested
// below it, descending through arrays. Matching is by name only.
func removeKeys(m map[string]any, keys map[string]struct{}) {
	for k, v := range m {
		if _, drop := keys[k]; drop {
			delete(m, k)
			continue
		}
		removeKeysValue(v, keys)
	}
}

func removeKeysValue(v any, keys map[string]struct{}) {
	switch t := v.(type) {
	case map[string]any:
		removeKeys(t, keys)
	case Resource:
		removeKeys(t, keys)
	case []any:
		for _, e := range t {
			removeKeysValue(e, keys)
		}
	case []Resource:
		for _, e := range t {
			removeKeys(e, keys)
		}
	}
}
