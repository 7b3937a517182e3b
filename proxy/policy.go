// Copyright 2026 The Keyward Authors
// SPDX-License-Identifier: Apache-2.0

package proxy

// Policy gates command dispatch between plugin resolution and
// credential selection. The current implementation always permits;
// the enforcement point exists so a real policy can be slotted in
// without touching the router.
type Policy interface {
	// Evaluate returns false to deny the dispatch. command is args[0]
	// ("" for an empty argument list).
	Evaluate(tool, command, resource string) bool
}

// AllowAllPolicy permits every dispatch.
type AllowAllPolicy struct{}

// Evaluate always returns true.
func (AllowAllPolicy) Evaluate(tool, command, resource string) bool {
	return true
}

var _ Policy = AllowAllPolicy{}
