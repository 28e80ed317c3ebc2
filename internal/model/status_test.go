package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusIntake, StatusRouted, true},
		{StatusIntake, StatusScored, false},
		{StatusRouted, StatusScored, true},
		{StatusRouted, StatusScheduled, false},
		{StatusScored, StatusScored, true},
		{StatusScored, StatusSlotted, true},
		{StatusScored, StatusScheduled, true},
		{StatusSlotted, StatusScheduled, true},
		{StatusScheduled, StatusPublished, true},
		{StatusScheduled, StatusScored, false},
		{StatusIntake, StatusKilled, true},
		{StatusScheduled, StatusKilled, true},
		{StatusKilled, StatusRouted, false},
		{StatusKilled, StatusKilled, false},
		{StatusPublished, StatusKilled, false},
		{Status("bogus"), StatusRouted, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestIsTerminal(t *testing.T) {
	t.Parallel()

	for _, s := range AllStatuses {
		want := s == StatusPublished || s == StatusKilled
		assert.Equal(t, want, s.IsTerminal(), string(s))
	}
}

func TestEnter_IdempotentTimestamps(t *testing.T) {
	t.Parallel()

	first := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	later := first.Add(48 * time.Hour)

	for _, s := range AllStatuses {
		if s == StatusIntake {
			continue
		}
		r := &IdeaRouting{ID: "r-1", CreatedAt: first}
		r.Enter(s, first)
		require.NotNil(t, r.StampFor(s), string(s))

		r.Enter(s, later)
		assert.Equal(t, first, *r.StampFor(s), "re-entering %s must keep the first stamp", s)
		assert.Equal(t, s, r.Status)
	}
}

func TestStampFor_Intake(t *testing.T) {
	t.Parallel()

	r := &IdeaRouting{}
	assert.Nil(t, r.StampFor(StatusIntake))

	created := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	r.CreatedAt = created
	assert.Equal(t, created, *r.StampFor(StatusIntake))
	assert.Nil(t, r.StampFor(StatusRouted))
}

func TestCheckInvariants(t *testing.T) {
	t.Parallel()

	date := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	score := 3.0

	tests := []struct {
		name    string
		r       IdeaRouting
		wantErr bool
	}{
		{"scheduled with date", IdeaRouting{Status: StatusScheduled, CalendarDate: &date}, false},
		{"scored with date", IdeaRouting{Status: StatusScored, CalendarDate: &date}, true},
		{"killed with kill tier", IdeaRouting{Status: StatusKilled, Tier: TierKill}, false},
		{"scored with kill tier", IdeaRouting{Status: StatusScored, Tier: TierKill}, true},
		{"override kill tier", IdeaRouting{Status: StatusScored, Tier: TierKill, OverrideScore: &score, OverrideReason: "weak"}, false},
		{"override without reason", IdeaRouting{Status: StatusScored, OverrideScore: &score}, true},
		{"unknown status", IdeaRouting{Status: "lost"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.r.CheckInvariants()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEffectiveScore(t *testing.T) {
	t.Parallel()

	computed, override := 6.5, 9.0
	r := IdeaRouting{Score: &computed}
	assert.Equal(t, 6.5, *r.EffectiveScore())

	r.OverrideScore = &override
	assert.Equal(t, 9.0, *r.EffectiveScore())
}

func TestParseDate(t *testing.T) {
	t.Parallel()

	d, err := ParseDate("2025-06-02")
	require.NoError(t, err)
	assert.Equal(t, time.Monday, d.Weekday())
	assert.Equal(t, "2025-06-02", FormatDate(&d))

	_, err = ParseDate("06/02/2025")
	assert.Error(t, err)
	assert.Equal(t, "", FormatDate(nil))
}

func TestTierValid(t *testing.T) {
	t.Parallel()

	assert.True(t, TierPremiumA.Valid())
	assert.True(t, TierKill.Valid())
	assert.False(t, Tier("s").Valid())
	assert.True(t, TimeSensitivity("").Valid())
	assert.False(t, TimeSensitivity("urgent").Valid())
}
