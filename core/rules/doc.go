// Package rules maps state codes to their Medicare supplement enrollment rule
// and derives the per-contact exclusion window from that rule.
//
// Rule parameters follow the state birthday and anniversary rules:
// StartOffsetDays is relative to the anchor occurrence (birthday or policy
// effective date) and DurationDays is the length of the statutory period.
// The exclusion window adds a 60 day lead-in before the statutory period.
package rules
