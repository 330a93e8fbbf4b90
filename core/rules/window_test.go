package rules

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/enrollmail/core/model"
)

func TestWindowBirthdayRule(t *testing.T) {
	calc := NewWindowCalculator(nil)
	c := model.Contact{ID: 1, State: "OR", BirthDate: model.DatePtr(1955, time.September, 15), EffectiveDate: model.DatePtr(2025, time.December, 15)}
	w, ok := calc.Compute(c, model.Date(2025, time.January, 1))
	require.True(t, ok)
	assert.Equal(t, model.Date(2025, time.July, 17), w.Start)
	assert.Equal(t, model.Date(2025, time.October, 16), w.End)
	assert.Equal(t, model.EmailBirthday, w.AssociatedType)
}

func TestWindowRollsToNextYear(t *testing.T) {
	calc := NewWindowCalculator(nil)
	c := model.Contact{State: "OR", BirthDate: model.DatePtr(1955, time.September, 15), EffectiveDate: model.DatePtr(2020, time.May, 1)}
	w, ok := calc.Compute(c, model.Date(2025, time.September, 16))
	require.True(t, ok)
	assert.Equal(t, model.Date(2026, time.July, 17), w.Start)
	assert.Equal(t, model.Date(2026, time.October, 16), w.End)
}

func TestWindowEffectiveDateRule(t *testing.T) {
	calc := NewWindowCalculator(nil)
	c := model.Contact{State: "MO", BirthDate: model.DatePtr(1950, time.March, 3), EffectiveDate: model.DatePtr(2019, time.June, 1)}
	w, ok := calc.Compute(c, model.Date(2025, time.January, 1))
	require.True(t, ok)
	// rule start May 2, lead-in starts 60 days earlier, end 63 days after start
	assert.Equal(t, model.Date(2025, time.March, 3), w.Start)
	assert.Equal(t, model.Date(2025, time.July, 4), w.End)
	assert.Equal(t, model.EmailEffective, w.AssociatedType)
}

func TestWindowLeapDayAnchor(t *testing.T) {
	calc := NewWindowCalculator(nil)
	c := model.Contact{State: "KY", BirthDate: model.DatePtr(1952, time.February, 29), EffectiveDate: model.DatePtr(2020, time.May, 1)}
	w, ok := calc.Compute(c, model.Date(2025, time.January, 1))
	require.True(t, ok)
	assert.Equal(t, model.AddDays(model.Date(2025, time.February, 28), -60), w.Start)
	assert.Equal(t, model.AddDays(model.Date(2025, time.February, 28), 60), w.End)
}

func TestWindowNone(t *testing.T) {
	calc := NewWindowCalculator(nil)
	ref := model.Date(2025, time.January, 1)
	for _, state := range []string{"TX", "CT", "ZZ"} {
		_, ok := calc.Compute(model.Contact{State: state, BirthDate: model.DatePtr(1950, 1, 1), EffectiveDate: model.DatePtr(2020, 1, 1)}, ref)
		assert.False(t, ok, state)
	}
	_, ok := calc.Compute(model.Contact{State: "OR"}, ref)
	assert.False(t, ok, "missing birth date")
}

func TestMemoCalculatorCaches(t *testing.T) {
	calc := NewWindowCalculator(nil)
	ref := model.Date(2025, time.January, 1)
	memo := NewMemo(calc, ref)
	c := model.Contact{State: "OR", BirthDate: model.DatePtr(1955, time.September, 15)}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w, ok := memo.Compute(c)
			assert.True(t, ok)
			assert.Equal(t, model.Date(2025, time.July, 17), w.Start)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, memo.Size())

	direct, _ := calc.Compute(c, ref)
	cached, _ := memo.Compute(c)
	assert.Equal(t, direct, cached)
}
