// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package ui renders command output tables.
package ui

import (
	"fmt"
	"io"
	"sort"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/stacklok/cmsproxy/pkg/apicache"
)

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.Options(
		tablewriter.WithHeader(header),
		tablewriter.WithRendition(
			tw.Rendition{
				Borders: tw.Border{
					Left:   tw.State(1),
					Top:    tw.State(1),
					Right:  tw.State(1),
					Bottom: tw.State(1),
				},
			},
		),
		tablewriter.WithAlignment(tw.MakeAlign(len(header), tw.AlignLeft)),
	)
	return table
}

// RenderCacheIndex renders the cached API responses, sorted by path.
func RenderCacheIndex(w io.Writer, index map[string]apicache.IndexEntry) error {
	if len(index) == 0 {
		fmt.Fprintln(w, "No cached responses found.")
		return nil
	}

	keys := make([]string, 0, len(index))
	for k := range index {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := index[keys[i]], index[keys[j]]
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		return keys[i] < keys[j]
	})

	table := newTable(w, []string{"Key", "Path", "Query"})
	for _, k := range keys {
		entry := index[k]
		if err := table.Append([]string{k, entry.Path, entry.Query.Encode()}); err != nil {
			return fmt.Errorf("failed to append row: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}
	return nil
}

// EndpointStatus is the outcome of probing one upstream path.
type EndpointStatus struct {
	Path   string
	OK     bool
	Detail string
}

// RenderStatus renders upstream probe results.
func RenderStatus(w io.Writer, baseURL string, statuses []EndpointStatus) error {
	fmt.Fprintf(w, "Upstream API: %s\n", baseURL)

	table := newTable(w, []string{"Path", "Status", "Detail"})
	for _, s := range statuses {
		status := "❌ Failed"
		if s.OK {
			status = "✅ OK"
		}
		if err := table.Append([]string{s.Path, status, s.Detail}); err != nil {
			return fmt.Errorf("failed to append row: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}
	return nil
}
