// SPDX-License-Identifier: MIT

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldAttemptID = "attempt_id"
	FieldTenant    = "tenant"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldStrategy  = "strategy"

	// State fields
	FieldOldPhase = "old_phase"
	FieldNewPhase = "new_phase"

	// Path / URL fields
	FieldPath     = "path"
	FieldBaseURL  = "base_url"
	FieldMediaURL = "media_url"

	// HTTP fields
	FieldStatus   = "status"
	FieldEndpoint = "endpoint"
)
