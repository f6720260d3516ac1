// SPDX-License-Identifier: MIT

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID = "request_id"
	FieldRunID     = "run_id"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldStage     = "stage"
	FieldOutcome   = "outcome"

	// Git / PR fields
	FieldBranch    = "branch"
	FieldSubmodule = "submodule"
	FieldCommit    = "commit"
	FieldPRNumber  = "pr_number"

	// Bundle fields
	FieldCertsTotal   = "certs_total"
	FieldCertsAdded   = "certs_added"
	FieldCertsRemoved = "certs_removed"

	// Path / URL fields
	FieldPath    = "path"
	FieldBaseURL = "base_url"
)
