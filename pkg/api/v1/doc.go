// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package v1 provides the HTTP routers of cmsproxy: the upstream API proxy,
// media operations, password and external login, health and version.
package v1
