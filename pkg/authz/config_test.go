// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package authz

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfigFile_YAML(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "authz.yaml", `
rule_required: true
rules:
  Api: [editor, admin]
  Dashboard:
    index: manager
    "*": admin
  Settings: admins
policies:
  admins:
    type: roles
    options:
      any_of: [admin]
`)

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)
	assert.True(t, cfg.RuleRequired)
	assert.Equal(t, []any{"editor", "admin"}, cfg.Rules["Api"])
	assert.Equal(t, map[string]any{"index": "manager", "*": "admin"}, cfg.Rules["Dashboard"])
	assert.Equal(t, "roles", cfg.Policies["admins"].Type)

	a, err := Compile(*cfg)
	require.NoError(t, err)
	assert.True(t, a.CanAccess(identity("manager"), nil, "Dashboard", "index").Allowed)
	assert.True(t, a.CanAccess(identity("admin"), nil, "Settings", "update").Allowed)
	assert.False(t, a.CanAccess(identity("admin"), nil, "Other", "index").Allowed)
}

func TestLoadConfigFile_JSON(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "authz.json", `{"rules": {"Media": "uploader"}}`)
	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, "uploader", cfg.Rules["Media"])
}

func TestLoadConfigFile_Errors(t *testing.T) {
	t.Parallel()

	_, err := LoadConfigFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read")

	path := writeFile(t, "bad.yaml", "rules: [unclosed")
	_, err = LoadConfigFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse")
}
