// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package oauth

import (
	"fmt"
	"strings"
)

// lookup resolves a dot-separated path in a decoded JSON object.
func lookup(data map[string]any, path string) (any, bool) {
	var current any = data
	for _, part := range strings.Split(path, ".") {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = obj[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// MapFields builds a local record from provider data using fieldMap
// (local field -> provider path). Missing provider fields are skipped.
func MapFields(data map[string]any, fieldMap map[string]string) map[string]any {
	out := make(map[string]any, len(fieldMap))
	for local, path := range fieldMap {
		if v, ok := lookup(data, path); ok && v != nil {
			out[local] = v
		}
	}
	return out
}

func stringField(fields map[string]any, name string) string {
	switch v := fields[name].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	default:
		return fmt.Sprint(v)
	}
}
