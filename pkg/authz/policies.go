// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package authz

// This file imports all policy implementations to ensure their init()
// functions are called and they register themselves with the policy registry.
//
// When adding a new policy type, add a blank import here.

import (
	// Import Cedar policies to register them
	_ "github.com/stacklok/cmsproxy/pkg/authz/policies/cedar"
)
