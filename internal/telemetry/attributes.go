// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys shared across spans.
const (
	RunIDKey      = "run.id"
	RunOutcomeKey = "run.outcome"
	RunStageKey   = "run.stage"

	GitBranchKey    = "git.branch"
	GitCommitKey    = "git.commit"
	GitSubmoduleKey = "git.submodule"

	BundleCertsKey   = "bundle.certs"
	BundleAddedKey   = "bundle.added"
	BundleRemovedKey = "bundle.removed"

	PRNumberKey = "pr.number"

	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// RunAttributes creates update-run span attributes.
func RunAttributes(runID, outcome, stage string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(RunIDKey, runID),
		attribute.String(RunOutcomeKey, outcome),
	}
	if stage != "" {
		attrs = append(attrs, attribute.String(RunStageKey, stage))
	}
	return attrs
}

// BundleAttributes creates bundle diff span attributes.
func BundleAttributes(certs, added, removed int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(BundleCertsKey, certs),
		attribute.Int(BundleAddedKey, added),
		attribute.Int(BundleRemovedKey, removed),
	}
}

// GitAttributes creates git span attributes, skipping empty values.
func GitAttributes(branch, commit, submodule string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 3)
	if branch != "" {
		attrs = append(attrs, attribute.String(GitBranchKey, branch))
	}
	if commit != "" {
		attrs = append(attrs, attribute.String(GitCommitKey, commit))
	}
	if submodule != "" {
		attrs = append(attrs, attribute.String(GitSubmoduleKey, submodule))
	}
	return attrs
}

// ErrorAttributes creates error span attributes.
func ErrorAttributes(errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
