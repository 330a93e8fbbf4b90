package rules

import (
	"fmt"
	"strings"
)

// RuleKind is the enrollment rule family of a state.
type RuleKind int

const (
	// Unknown marks a state code the catalog does not recognize.
	Unknown RuleKind = iota
	// BirthdayRule windows are anchored on the contact's birthday.
	BirthdayRule
	// EffectiveDateRule windows are anchored on the policy effective date.
	EffectiveDateRule
	// YearRound states allow switching at any time; no emails are computed.
	YearRound
	// NoStatutoryRule is a recognized state without an enrollment window.
	NoStatutoryRule
)

var kindNames = map[RuleKind]string{
	Unknown:           "unknown",
	BirthdayRule:      "birthday",
	EffectiveDateRule: "effective_date",
	YearRound:         "year_round",
	NoStatutoryRule:   "none",
}

func (k RuleKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("RuleKind(%d)", int(k))
}

// ParseRuleKind converts the textual kind used in rule tables.
func ParseRuleKind(s string) (RuleKind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return Unknown, fmt.Errorf("unknown rule kind %q", s)
}

// HasWindow reports whether the kind produces an exclusion window.
func (k RuleKind) HasWindow() bool {
	return k == BirthdayRule || k == EffectiveDateRule
}

// StateRule holds the rule parameters for a single state.
type StateRule struct {
	State           string
	Kind            RuleKind
	StartOffsetDays int
	DurationDays    int
}

// Validate checks that the rule is internally consistent.
func (r StateRule) Validate() error {
	if len(r.State) != 2 {
		return fmt.Errorf("state %q: expected a two-letter code", r.State)
	}
	switch r.Kind {
	case BirthdayRule, EffectiveDateRule:
		if r.DurationDays <= 0 {
			return fmt.Errorf("state %s: duration must be positive", r.State)
		}
	case YearRound, NoStatutoryRule:
	default:
		return fmt.Errorf("state %s: unsupported kind %s", r.State, r.Kind)
	}
	return nil
}

// Catalog is an immutable state-to-rule table.
type Catalog struct {
	rules map[string]StateRule
}

// NewCatalog builds a catalog from the provided rules. Later entries override
// earlier ones for the same state.
func NewCatalog(rules ...StateRule) (*Catalog, error) {
	c := &Catalog{rules: make(map[string]StateRule, len(rules))}
	for _, r := range rules {
		r.State = normalize(r.State)
		if err := r.Validate(); err != nil {
			return nil, err
		}
		c.rules[r.State] = r
	}
	return c, nil
}

// Lookup returns the rule for state. Unmapped codes resolve to Unknown.
func (c *Catalog) Lookup(state string) StateRule {
	code := normalize(state)
	if r, ok := c.rules[code]; ok {
		return r
	}
	return StateRule{State: code, Kind: Unknown}
}

// With returns a copy of the catalog with overrides applied.
func (c *Catalog) With(overrides ...StateRule) (*Catalog, error) {
	all := make([]StateRule, 0, len(c.rules)+len(overrides))
	for _, r := range c.rules {
		all = append(all, r)
	}
	return NewCatalog(append(all, overrides...)...)
}

// Len returns the number of mapped states.
func (c *Catalog) Len() int { return len(c.rules) }

func normalize(s string) string { return strings.ToUpper(strings.TrimSpace(s)) }

var yearRoundStates = []string{"CT", "MA", "NY", "WA"}

var noRuleStates = []string{
	"AK", "AL", "AR", "AZ", "CO", "DC", "DE", "FL", "GA", "HI", "IA", "IN", "KS",
	"ME", "MI", "MN", "MS", "MT", "NC", "ND", "NE", "NH", "NJ", "NM", "OH", "PA",
	"RI", "SC", "SD", "TN", "TX", "UT", "VA", "VT", "WI", "WV", "WY",
}

// statutoryRules is the authoritative birthday and anniversary rule table.
var statutoryRules = []StateRule{
	{State: "CA", Kind: BirthdayRule, StartOffsetDays: -30, DurationDays: 90},
	{State: "ID", Kind: BirthdayRule, StartOffsetDays: 0, DurationDays: 63},
	{State: "IL", Kind: BirthdayRule, StartOffsetDays: 0, DurationDays: 45},
	{State: "KY", Kind: BirthdayRule, StartOffsetDays: 0, DurationDays: 60},
	{State: "LA", Kind: BirthdayRule, StartOffsetDays: -30, DurationDays: 93},
	{State: "MD", Kind: BirthdayRule, StartOffsetDays: 0, DurationDays: 31},
	{State: "NV", Kind: BirthdayRule, StartOffsetDays: 0, DurationDays: 60},
	{State: "OK", Kind: BirthdayRule, StartOffsetDays: 0, DurationDays: 60},
	{State: "OR", Kind: BirthdayRule, StartOffsetDays: 0, DurationDays: 31},
	{State: "MO", Kind: EffectiveDateRule, StartOffsetDays: -30, DurationDays: 63},
}

// DefaultRules returns a copy of the built-in rule table.
func DefaultRules() []StateRule {
	out := make([]StateRule, 0, len(statutoryRules)+len(yearRoundStates)+len(noRuleStates))
	out = append(out, statutoryRules...)
	for _, s := range yearRoundStates {
		out = append(out, StateRule{State: s, Kind: YearRound})
	}
	for _, s := range noRuleStates {
		out = append(out, StateRule{State: s, Kind: NoStatutoryRule})
	}
	return out
}

// DefaultCatalog returns the built-in catalog.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(DefaultRules()...)
	if err != nil {
		panic(fmt.Sprintf("rules: invalid default table: %v", err))
	}
	return c
}
