// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stacklok/cmsproxy/cmd/cmsproxy/app/ui"
	"github.com/stacklok/cmsproxy/pkg/apiclient"
)

// defaultProbePath is requested when no path is given.
const defaultProbePath = "/"

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [path...]",
		Short: "Check that the upstream API answers",
		Long: `Send a GET request for each path to the upstream API and report the result.

The upstream root is probed when no path is given. The command fails when any
probe fails.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("configuration loading failed: %w", err)
			}
			client, err := cfg.BuildAPIClient()
			if err != nil {
				return fmt.Errorf("failed to create API client: %w", err)
			}

			if len(args) == 0 {
				args = []string{defaultProbePath}
			}
			statuses := probe(cmd.Context(), apiclient.NewSoftClient(client), args)
			if err := ui.RenderStatus(cmd.OutOrStdout(), client.BaseURL(), statuses); err != nil {
				return err
			}
			for _, s := range statuses {
				if !s.OK {
					return fmt.Errorf("upstream API check failed for %s", s.Path)
				}
			}
			return nil
		},
	}
}

func probe(ctx context.Context, soft *apiclient.SoftClient, paths []string) []ui.EndpointStatus {
	statuses := make([]ui.EndpointStatus, 0, len(paths))
	for _, path := range paths {
		soft.Reset()
		doc := soft.Get(ctx, path, nil, nil)
		if doc == nil {
			statuses = append(statuses, ui.EndpointStatus{Path: path, Detail: soft.Err().Error()})
			continue
		}
		statuses = append(statuses, ui.EndpointStatus{
			Path:   path,
			OK:     true,
			Detail: fmt.Sprintf("%d resources", doc.Data.Len()),
		})
	}
	return statuses
}
