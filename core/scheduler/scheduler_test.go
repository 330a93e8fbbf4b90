package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/enrollmail/core/model"
	"github.com/kilianp07/enrollmail/core/rules"
	"github.com/kilianp07/enrollmail/infra/logger"
)

func newTestScheduler() *Scheduler {
	return New(nil, logger.NopLogger{})
}

func contact(id int64, state string, birth, effective *time.Time) model.Contact {
	return model.Contact{ID: id, State: state, BirthDate: birth, EffectiveDate: effective}
}

type emailSpec struct {
	Type model.EmailType
	Date string
}

func specs(emails []model.Email) []emailSpec {
	out := make([]emailSpec, len(emails))
	for i, e := range emails {
		out[i] = emailSpec{Type: e.Type, Date: e.ScheduledAt.Format(model.DateLayout)}
	}
	return out
}

var jan1 = model.Date(2025, time.January, 1)

func TestComputeEmails_NoStatutoryRule(t *testing.T) {
	s := newTestScheduler()
	c := contact(1, "TX", model.DatePtr(1950, time.February, 1), model.DatePtr(2025, time.December, 15))

	emails, err := s.ComputeEmails(c, jan1)
	require.NoError(t, err)
	assert.Equal(t, []emailSpec{
		{model.EmailBirthday, "2025-01-18"},
		{model.EmailCarrierUpdate, "2025-01-31"},
		{model.EmailAEP, "2025-08-18"},
		{model.EmailEffective, "2025-11-15"},
	}, specs(emails))
	for _, e := range emails {
		assert.Equal(t, int64(1), e.ContactID)
		assert.NotEmpty(t, e.Reason)
	}
}

func TestComputeEmails_YearRound(t *testing.T) {
	s := newTestScheduler()
	c := contact(2, "CT", model.DatePtr(1950, time.February, 1), model.DatePtr(2025, time.December, 15))
	p, err := s.Plan(c, jan1)
	require.NoError(t, err)
	assert.Empty(t, p.Emails)
	assert.Equal(t, SkipYearRound, p.Skipped)
}

func TestComputeEmails_UnknownState(t *testing.T) {
	s := newTestScheduler()
	c := contact(3, "ZZ", model.DatePtr(1950, time.February, 1), model.DatePtr(2025, time.December, 15))
	p, err := s.Plan(c, jan1)
	require.NoError(t, err)
	assert.Empty(t, p.Emails)
	assert.Equal(t, SkipUnknownState, p.Skipped)
	assert.False(t, p.AEPCandidate())
}

func TestComputeEmails_MissingDates(t *testing.T) {
	s := newTestScheduler()
	for _, c := range []model.Contact{
		contact(4, "TX", nil, model.DatePtr(2025, time.December, 15)),
		contact(5, "TX", model.DatePtr(1950, time.February, 1), nil),
		contact(6, "OR", nil, nil),
	} {
		emails, err := s.ComputeEmails(c, jan1)
		require.NoError(t, err)
		assert.Empty(t, emails, "contact %d", c.ID)
	}
}

func TestComputeEmails_BirthdayWindow(t *testing.T) {
	s := newTestScheduler()
	c := contact(7, "OR", model.DatePtr(1955, time.September, 15), model.DatePtr(2025, time.December, 15))

	p, err := s.Plan(c, jan1)
	require.NoError(t, err)
	require.True(t, p.HasWindow)
	assert.Equal(t, "2025-07-17", p.Window.Start.Format(model.DateLayout))
	assert.Equal(t, "2025-10-16", p.Window.End.Format(model.DateLayout))

	assert.Equal(t, []emailSpec{
		{model.EmailCarrierUpdate, "2025-01-31"},
		{model.EmailPostExclusion, "2025-10-17"},
		{model.EmailEffective, "2025-11-15"},
	}, specs(p.Emails))
	follow, ok := p.Email(model.EmailPostExclusion)
	require.True(t, ok)
	assert.Equal(t, model.EmailBirthday, follow.FollowUpFor)

	reasons := map[model.EmailType]SuppressionReason{}
	for _, sp := range p.Suppressed {
		reasons[sp.Type] = sp.Reason
	}
	assert.Equal(t, SuppressedByWindow, reasons[model.EmailBirthday])
	assert.Equal(t, SuppressedByWindow, reasons[model.EmailAEP])
}

func TestComputeEmails_EffectiveDateWindow(t *testing.T) {
	s := newTestScheduler()
	c := contact(8, "MO", model.DatePtr(1950, time.April, 15), model.DatePtr(2019, time.June, 1))

	p, err := s.Plan(c, jan1)
	require.NoError(t, err)
	assert.Equal(t, []emailSpec{
		{model.EmailCarrierUpdate, "2025-01-31"},
		{model.EmailBirthday, "2025-04-01"},
		{model.EmailPostExclusion, "2025-07-05"},
		{model.EmailAEP, "2025-08-18"},
	}, specs(p.Emails))
	follow, _ := p.Email(model.EmailPostExclusion)
	assert.Equal(t, model.EmailEffective, follow.FollowUpFor)
}

func TestComputeEmails_NextYearWindow(t *testing.T) {
	s := newTestScheduler()
	c := contact(9, "OR", model.DatePtr(1955, time.September, 15), model.DatePtr(2025, time.December, 15))
	// The 2025 window has closed; the next one starts in July 2026.
	today := model.Date(2025, time.October, 20)
	p, err := s.Plan(c, today)
	require.NoError(t, err)
	assert.Equal(t, "2026-07-17", p.Window.Start.Format(model.DateLayout))
	assert.Equal(t, []emailSpec{
		{model.EmailEffective, "2025-11-15"},
		{model.EmailCarrierUpdate, "2026-01-31"},
		{model.EmailPostExclusion, "2026-10-17"},
	}, specs(p.Emails))
	assert.Contains(t, p.Suppressed, Suppression{Type: model.EmailAEP, Reason: SuppressedNoAEPWeek})
}

func TestComputeEmails_AntiClustering(t *testing.T) {
	s := newTestScheduler()
	c := contact(10, "TX", model.DatePtr(1950, time.September, 1), model.DatePtr(2025, time.December, 15))

	p, err := s.Plan(c, jan1)
	require.NoError(t, err)
	_, ok := p.Email(model.EmailBirthday)
	assert.False(t, ok)
	require.Len(t, p.Suppressed, 1)
	assert.Equal(t, SuppressedByClustering, p.Suppressed[0].Reason)
	_, ok = p.Email(model.EmailPostExclusion)
	assert.False(t, ok)
}

func TestComputeEmails_YearEndBirthday(t *testing.T) {
	s := newTestScheduler()
	c := contact(11, "TX", model.DatePtr(2000, time.December, 31), model.DatePtr(2020, time.June, 1))

	cases := []struct {
		today string
		want  string
	}{
		{"2025-12-10", "2025-12-17"},
		{"2025-12-17", "2025-12-17"},
		{"2025-12-18", ""},
		{"2025-12-31", ""},
		{"2026-01-01", "2026-12-17"},
	}
	for _, tc := range cases {
		today, err := model.ParseDate(tc.today)
		require.NoError(t, err)
		p, err := s.Plan(c, today)
		require.NoError(t, err, tc.today)
		b, ok := p.Email(model.EmailBirthday)
		if tc.want == "" {
			assert.False(t, ok, tc.today)
			assert.Contains(t, p.Suppressed, Suppression{
				Type:   model.EmailBirthday,
				Reason: SuppressedPast,
				Date:   model.Date(2025, time.December, 17),
			}, tc.today)
			continue
		}
		require.True(t, ok, tc.today)
		assert.Equal(t, tc.want, b.ScheduledAt.Format(model.DateLayout), tc.today)
	}
}

func TestComputeEmails_LeadDatePassed(t *testing.T) {
	s := newTestScheduler()

	t.Run("birthday inside window cycle", func(t *testing.T) {
		c := contact(20, "OR", model.DatePtr(1955, time.September, 15), model.DatePtr(2025, time.December, 15))
		p, err := s.Plan(c, model.Date(2025, time.September, 5))
		require.NoError(t, err)
		assert.Equal(t, "2025-07-17", p.Window.Start.Format(model.DateLayout))
		_, ok := p.Email(model.EmailBirthday)
		assert.False(t, ok)
		assert.Contains(t, p.Suppressed, Suppression{
			Type:   model.EmailBirthday,
			Reason: SuppressedPast,
			Date:   model.Date(2025, time.September, 1),
		})
		for _, e := range p.Emails {
			assert.False(t, e.ScheduledAt.After(model.Date(2026, time.July, 16)), "%s on %s", e.Type, e.ScheduledAt.Format(model.DateLayout))
		}
	})

	t.Run("effective", func(t *testing.T) {
		c := contact(21, "TX", model.DatePtr(1950, time.February, 1), model.DatePtr(2019, time.December, 15))
		p, err := s.Plan(c, model.Date(2025, time.November, 20))
		require.NoError(t, err)
		_, ok := p.Email(model.EmailEffective)
		assert.False(t, ok)
		assert.Contains(t, p.Suppressed, Suppression{
			Type:   model.EmailEffective,
			Reason: SuppressedPast,
			Date:   model.Date(2025, time.November, 15),
		})
	})
}

func TestComputeEmails_LateInYear(t *testing.T) {
	s := newTestScheduler()
	c := contact(12, "TX", model.DatePtr(1950, time.February, 1), model.DatePtr(2025, time.December, 15))
	p, err := s.Plan(c, model.Date(2025, time.September, 10))
	require.NoError(t, err)
	_, ok := p.Email(model.EmailAEP)
	assert.False(t, ok)
	assert.Contains(t, p.Suppressed, Suppression{Type: model.EmailAEP, Reason: SuppressedNoAEPWeek})
	_, ok = p.Email(model.EmailPostExclusion)
	assert.False(t, ok)
}

func TestComputeEmails_Idempotent(t *testing.T) {
	s := newTestScheduler()
	c := contact(13, "OR", model.DatePtr(1955, time.September, 15), model.DatePtr(2025, time.December, 15))
	a, err := s.ComputeEmails(c, jan1)
	require.NoError(t, err)
	b, err := s.ComputeEmails(c, jan1)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestComputeEmails_Properties(t *testing.T) {
	s := newTestScheduler()
	states := []string{"TX", "CA", "ID", "IL", "KY", "LA", "MD", "NV", "OK", "OR", "MO", "FL"}
	days := []time.Time{
		jan1,
		model.Date(2025, time.March, 1),
		model.Date(2025, time.August, 20),
		model.Date(2025, time.September, 5),
		model.Date(2025, time.September, 20),
		model.Date(2025, time.December, 31),
		model.Date(2028, time.February, 29),
	}
	catalog := rules.DefaultCatalog()
	var id int64
	for _, st := range states {
		rule := catalog.Lookup(st)
		for m := time.January; m <= time.December; m += 2 {
			for _, today := range days {
				id++
				c := contact(id, st, model.DatePtr(1952, m, 29), model.DatePtr(2018, 13-m, 1))
				emails, err := s.ComputeEmails(c, today)
				require.NoError(t, err)
				assert.NoError(t, Validate(emails, today))

				byType := map[model.EmailType]time.Time{}
				for i, e := range emails {
					byType[e.Type] = e.ScheduledAt
					if i > 0 {
						assert.False(t, e.ScheduledAt.Before(emails[i-1].ScheduledAt))
					}
					for _, w := range windowsFor(rule, c, today, e) {
						assert.False(t, w.Contains(e.ScheduledAt), "%s %s: %s on %s inside %s",
							st, today.Format(model.DateLayout), e.Type, e.ScheduledAt.Format(model.DateLayout), w)
					}
				}
				if b, ok := byType[model.EmailBirthday]; ok {
					for _, other := range []model.EmailType{model.EmailEffective, model.EmailAEP} {
						if d, ok := byType[other]; ok {
							assert.GreaterOrEqual(t, model.DaysBetween(b, d), AntiClusterDays,
								"%s %s vs %s", st, today.Format(model.DateLayout), other)
						}
					}
				}
			}
		}
	}
}

// windowsFor returns the exclusion windows e must stay out of: the window in
// force on today and, when e is the rule's own anchor email, the window of the
// occurrence it announces.
func windowsFor(rule rules.StateRule, c model.Contact, today time.Time, e model.Email) []model.ExclusionWindow {
	switch e.Type {
	case model.EmailEffective, model.EmailAEP:
	case model.EmailBirthday:
		if rule.Kind == rules.EffectiveDateRule {
			return nil
		}
	default:
		return nil
	}
	var out []model.ExclusionWindow
	if w, ok := rules.WindowFor(rule, c, today); ok {
		out = append(out, w)
	}
	var occ time.Time
	switch {
	case e.Type == model.EmailBirthday && rule.Kind == rules.BirthdayRule:
		occ = model.AddDays(e.ScheduledAt, BirthdayLeadDays)
	case e.Type == model.EmailEffective && rule.Kind == rules.EffectiveDateRule:
		occ = model.AddDays(e.ScheduledAt, EffectiveLeadDays)
	default:
		return out
	}
	if w, ok := rules.WindowFor(rule, c, occ); ok {
		out = append(out, w)
	}
	return out
}

func TestValidate(t *testing.T) {
	e := func(tp model.EmailType, d time.Time) model.Email {
		return model.Email{ContactID: 1, Type: tp, ScheduledAt: d}
	}
	assert.NoError(t, Validate([]model.Email{e(model.EmailAEP, model.Date(2025, time.August, 25))}, jan1))
	assert.ErrorIs(t, Validate([]model.Email{e(model.EmailAEP, model.Date(2025, time.August, 26))}, jan1), ErrInvariantViolation)
	assert.ErrorIs(t, Validate([]model.Email{e(model.EmailBirthday, model.Date(2024, time.December, 31))}, jan1), ErrInvariantViolation)
	assert.ErrorIs(t, Validate([]model.Email{
		e(model.EmailBirthday, model.Date(2025, time.March, 1)),
		e(model.EmailBirthday, model.Date(2025, time.April, 1)),
	}, jan1), ErrInvariantViolation)
}

func TestStepRecoversPanic(t *testing.T) {
	p := Plan{ContactID: 1}
	b := &planBuilder{log: logger.NopLogger{}, today: jan1, plan: &p}
	b.step(model.EmailBirthday, func() { panic("bad date") })
	b.step(model.EmailCarrierUpdate, func() {
		b.add(model.Email{ContactID: 1, Type: model.EmailCarrierUpdate, ScheduledAt: jan1})
	})
	assert.Len(t, p.Emails, 1)
	assert.Equal(t, []Suppression{{Type: model.EmailBirthday, Reason: SuppressedByFailure}}, p.Suppressed)
}

func TestCustomCatalog(t *testing.T) {
	cat, err := rules.DefaultCatalog().With(rules.StateRule{State: "TX", Kind: rules.YearRound})
	require.NoError(t, err)
	s := New(rules.NewWindowCalculator(cat), logger.NopLogger{})
	emails, err := s.ComputeEmails(contact(14, "TX", model.DatePtr(1950, time.February, 1), model.DatePtr(2025, time.December, 15)), jan1)
	require.NoError(t, err)
	assert.Empty(t, emails)
}
