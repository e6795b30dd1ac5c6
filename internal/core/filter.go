package core

import (
	"strings"
	"time"

	"github.com/samber/lo"
)

// Normalize trims whitespace, lowercases enum-like fields and drops "all".
// Region and agent keep their case and match exactly.
func (f FilterSpec) Normalize() FilterSpec {
	norm := func(s string) string {
		s = strings.TrimSpace(s)
		if strings.EqualFold(s, "all") {
			return ""
		}
		return s
	}
	out := FilterSpec{
		Search:        strings.TrimSpace(f.Search),
		Status:        strings.ToLower(norm(f.Status)),
		Stage:         strings.ToLower(norm(f.Stage)),
		Region:        norm(f.Region),
		Priority:      strings.ToLower(norm(f.Priority)),
		AssignedAgent: norm(f.AssignedAgent),
	}
	if f.From != nil {
		t := f.From.UTC()
		out.From = &t
	}
	if f.To != nil {
		t := f.To.UTC()
		out.To = &t
	}
	return out
}

// IsEmpty reports whether the spec imposes no constraint.
func (f FilterSpec) IsEmpty() bool {
	return f.Normalize() == FilterSpec{}
}

// Matches reports whether r satisfies every predicate of the spec.
// The spec must already be normalized.
func (f FilterSpec) Matches(r Record) bool {
	if f.Status != "" && string(r.Status) != f.Status {
		return false
	}
	if f.Stage != "" && string(r.Stage) != f.Stage {
		return false
	}
	if f.Priority != "" && string(r.Priority) != f.Priority {
		return false
	}
	if f.Region != "" && r.Subject.State != f.Region {
		return false
	}
	if f.AssignedAgent != "" && r.AssignedAgent != f.AssignedAgent {
		return false
	}
	if f.From != nil && r.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && r.CreatedAt.After(*f.To) {
		return false
	}
	if f.Search != "" && !matchesSearch(r, strings.ToLower(f.Search)) {
		return false
	}
	return true
}

func matchesSearch(r Record, needle string) bool {
	contains := func(s string) bool { return strings.Contains(strings.ToLower(s), needle) }
	if contains(r.Subject.Name) || contains(r.Subject.Email) || contains(r.Subject.Location) {
		return true
	}
	return lo.ContainsBy(r.Subject.PrimaryCrops, contains)
}

// Filter returns the records matching spec, preserving input order.
// It never mutates or re-sorts its input.
func Filter(records []Record, spec FilterSpec) []Record {
	spec = spec.Normalize()
	return lo.Filter(records, func(r Record, _ int) bool {
		return spec.Matches(r)
	})
}

// EndOfDay returns the last instant of t's calendar day, used to make a
// date-only upper bound inclusive.
func EndOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, int(time.Second-time.Nanosecond), t.Location())
}
