// Package audit implements the event-capture pipeline: the mutation hooks the
// storage layer must invoke around every mutating call, the relation-change
// registry that renders membership changes into bounded human-readable text,
// the login and password-change recorders, and the mirror that copies every
// persisted record onto the secondary log stream.
//
// Audit records are intentionally separate from application logs: application
// logs are ephemeral debug output consumed by on-call engineers, while audit
// records are immutable rows consumed by security teams and may be subject to
// compliance retention policies measured in years.
package audit

// Entity is the minimal view the pipeline has of a domain object: a category
// label and a display string. Entities carry their own category instead of
// being inspected by reflection, so the set of auditable types is explicit.
type Entity interface {
	// LogName returns the category label stored as resource_type, e.g. "User".
	LogName() string
	// String returns the display form stored as resource.
	String() string
}

// Truncate caps s at max characters, counting runes so a multi-byte sequence
// is never split. Truncation is silent: overlong values are capped, not
// rejected.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		// Byte length within the cap implies rune length is too.
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
