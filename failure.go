package dbmcp

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rickchristie/dbmcp/internal/policy"
)

// Failure kinds. This is the complete caller-facing error vocabulary: every
// failed invocation surfaces exactly one of these, never a raw driver error.
const (
	KindUnknownTool            = "UnknownTool"
	KindUnknownDatabase        = "UnknownDatabase"
	KindUnknownTemplate        = "UnknownTemplate"
	KindAmbiguousSource        = "AmbiguousSource"
	KindRawSQLDisabled         = "RawSQLDisabled"
	KindDatabaseNotAllowed     = "DatabaseNotAllowed"
	KindTemplateNotAllowed     = "TemplateNotAllowed"
	KindOutputFormatNotAllowed = "OutputFormatNotAllowed"
	KindBindingError           = "BindingError"
	KindPoolExhausted          = "PoolExhausted"
	KindTimeout                = "Timeout"
	KindDriverError            = "DriverError"
	KindCancelled              = "Cancelled"
)

// Failure is a typed invocation outcome. It implements error and serializes
// to the wire envelope {"error_kind": ..., "message": ...}.
type Failure struct {
	Kind    string `json:"error_kind"`
	Message string `json:"message"`
}

func (f *Failure) Error() string { return f.Message }

// Envelope returns the JSON failure envelope for transport adapters.
func (f *Failure) Envelope() string {
	b, err := json.Marshal(f)
	if err != nil {
		return fmt.Sprintf(`{"error_kind":%q,"message":"failed to encode failure"}`, f.Kind)
	}
	return string(b)
}

func failf(kind, format string, args ...any) *Failure {
	return &Failure{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// AsFailure converts any error into a *Failure. Policy violations map to
// their corresponding kinds; unrecognized errors become DriverError with the
// message preserved for diagnostics.
func AsFailure(err error) *Failure {
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	var v *policy.Violation
	if errors.As(err, &v) {
		return &Failure{Kind: violationKinds[v.Rule], Message: v.Message}
	}
	return &Failure{Kind: KindDriverError, Message: err.Error()}
}

// violationKinds maps policy rule identifiers to failure kinds. The policy
// package keeps its own identifiers so it stays importable without a cycle.
var violationKinds = map[string]string{
	policy.RuleAmbiguousSource:        KindAmbiguousSource,
	policy.RuleRawSQLDisabled:         KindRawSQLDisabled,
	policy.RuleDatabaseNotAllowed:     KindDatabaseNotAllowed,
	policy.RuleTemplateNotAllowed:     KindTemplateNotAllowed,
	policy.RuleOutputFormatNotAllowed: KindOutputFormatNotAllowed,
}
