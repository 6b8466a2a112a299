// Tenantguard - Multi-Tenant Authorization Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tenantguard

package supervisor

import (
	"context"
	"sync/atomic"
)

// scriptedService stands in for a storage or API service. Its nth run
// returns script[n]; once the script is used up, runs block until canceled,
// like a listener that finally stays connected.
type scriptedService struct {
	name   string
	script []error

	runs  atomic.Int32
	exits atomic.Int32
}

func newScriptedService(name string, script ...error) *scriptedService {
	return &scriptedService{name: name, script: script}
}

func (s *scriptedService) Serve(ctx context.Context) error {
	n := int(s.runs.Add(1)) - 1
	defer s.exits.Add(1)

	if n < len(s.script) {
		return s.script[n]
	}
	<-ctx.Done()
	return ctx.Err()
}

func (s *scriptedService) String() string {
	return s.name
}
