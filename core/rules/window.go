package rules

import (
	"sync"
	"time"

	"github.com/kilianp07/enrollmail/core/model"
)

// LeadInDays is the part of the exclusion window preceding the statutory
// period.
const LeadInDays = 60

// WindowCalculator derives exclusion windows from a rule catalog.
type WindowCalculator struct {
	catalog *Catalog
}

// NewWindowCalculator returns a calculator backed by catalog. A nil catalog
// selects the default table.
func NewWindowCalculator(catalog *Catalog) *WindowCalculator {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &WindowCalculator{catalog: catalog}
}

// Catalog returns the underlying rule catalog.
func (w *WindowCalculator) Catalog() *Catalog { return w.catalog }

// Compute returns the exclusion window for contact at ref. The boolean is
// false when the state has no statutory window or the anchor date is missing.
func (w *WindowCalculator) Compute(c model.Contact, ref time.Time) (model.ExclusionWindow, bool) {
	return WindowFor(w.catalog.Lookup(c.State), c, ref)
}

// WindowFor computes the window for an already resolved rule.
func WindowFor(rule StateRule, c model.Contact, ref time.Time) (model.ExclusionWindow, bool) {
	anchor, typ, ok := anchorFor(rule.Kind, c)
	if !ok {
		return model.ExclusionWindow{}, false
	}
	occ := model.NextAnniversary(*anchor, ref)
	start := model.AddDays(occ, rule.StartOffsetDays)
	end := model.AddDays(start, rule.DurationDays)
	return model.ExclusionWindow{
		Start:          model.AddDays(start, -LeadInDays),
		End:            end,
		AssociatedType: typ,
	}, true
}

func anchorFor(kind RuleKind, c model.Contact) (*time.Time, model.EmailType, bool) {
	switch kind {
	case BirthdayRule:
		if c.BirthDate == nil || c.BirthDate.IsZero() {
			return nil, "", false
		}
		return c.BirthDate, model.EmailBirthday, true
	case EffectiveDateRule:
		if c.EffectiveDate == nil || c.EffectiveDate.IsZero() {
			return nil, "", false
		}
		return c.EffectiveDate, model.EmailEffective, true
	default:
		return nil, "", false
	}
}

type memoKey struct {
	state  string
	year   int
	anchor time.Time
}

type memoEntry struct {
	window model.ExclusionWindow
	ok     bool
}

// MemoCalculator caches windows for a single reference date. Entries are
// keyed by state, reference year and anchor date, so an instance should live
// no longer than the batch that created it.
type MemoCalculator struct {
	calc *WindowCalculator
	ref  time.Time
	mu   sync.RWMutex
	memo map[memoKey]memoEntry
}

// NewMemo returns a memoizing calculator bound to ref.
func NewMemo(calc *WindowCalculator, ref time.Time) *MemoCalculator {
	return &MemoCalculator{calc: calc, ref: model.Day(ref), memo: make(map[memoKey]memoEntry)}
}

// Compute returns the (possibly cached) window for contact.
func (m *MemoCalculator) Compute(c model.Contact) (model.ExclusionWindow, bool) {
	rule := m.calc.catalog.Lookup(c.State)
	anchor, _, ok := anchorFor(rule.Kind, c)
	if !ok {
		return model.ExclusionWindow{}, false
	}
	key := memoKey{state: rule.State, year: m.ref.Year(), anchor: model.Day(*anchor)}
	m.mu.RLock()
	e, hit := m.memo[key]
	m.mu.RUnlock()
	if hit {
		return e.window, e.ok
	}
	w, ok := WindowFor(rule, c, m.ref)
	m.mu.Lock()
	m.memo[key] = memoEntry{window: w, ok: ok}
	m.mu.Unlock()
	return w, ok
}

// Size returns the number of cached entries.
func (m *MemoCalculator) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.memo)
}
