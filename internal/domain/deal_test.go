package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newActiveDeal(max, current int) *Deal {
	d := &Deal{
		ID:                  uuid.New(),
		Code:                "JAM-001",
		Title:               "Family pizza bundle",
		CategoryID:          uuid.New(),
		RegularPrice:        100,
		Jam3aPrice:          70,
		MinParticipants:     1,
		MaxParticipants:     max,
		CurrentParticipants: current,
		ExpiryDate:          testNow.Add(7 * 24 * time.Hour),
		Status:              DealStatusActive,
	}
	for i := 0; i < current; i++ {
		d.Participants = append(d.Participants, uuid.New())
	}
	return d
}

func TestJoinCompletesDealWhenLastSlotTaken(t *testing.T) {
	deal := newActiveDeal(2, 1)
	userA := uuid.New()

	require.NoError(t, deal.Join(userA, nil, testNow))

	assert.Equal(t, 2, deal.CurrentParticipants)
	assert.Equal(t, DealStatusCompleted, deal.Status)
	assert.True(t, deal.HasParticipant(userA))
}

func TestJoinAfterCompletionReportsFull(t *testing.T) {
	deal := newActiveDeal(2, 1)
	require.NoError(t, deal.Join(uuid.New(), nil, testNow))

	before := *deal
	err := deal.Join(uuid.New(), nil, testNow)

	assert.ErrorIs(t, err, ErrFull)
	assert.Equal(t, before.CurrentParticipants, deal.CurrentParticipants)
	assert.Len(t, deal.Participants, len(before.Participants))
}

func TestJoinExpiredDeal(t *testing.T) {
	deal := newActiveDeal(5, 1)
	deal.ExpiryDate = testNow.Add(-24 * time.Hour)

	err := deal.Join(uuid.New(), nil, testNow)
	assert.ErrorIs(t, err, ErrExpired)
	assert.Equal(t, DealStatusExpired, deal.Status)
	assert.Equal(t, 1, deal.CurrentParticipants)

	// a second attempt sees the corrected status and still reports expiry
	assert.ErrorIs(t, deal.Join(uuid.New(), nil, testNow), ErrExpired)
}

func TestJoinPendingDealMentionsActive(t *testing.T) {
	deal := newActiveDeal(5, 0)
	deal.Status = DealStatusPending

	err := deal.Join(uuid.New(), nil, testNow)

	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Contains(t, err.Error(), "active")
	assert.Contains(t, err.Error(), "pending")
}

func TestJoinTwiceIsDuplicate(t *testing.T) {
	deal := newActiveDeal(5, 0)
	userA := uuid.New()

	require.NoError(t, deal.Join(userA, nil, testNow))
	assert.ErrorIs(t, deal.Join(userA, nil, testNow), ErrDuplicateJoin)
	assert.Equal(t, 1, deal.CurrentParticipants)
}

func TestJoinPrecedence(t *testing.T) {
	userID := uuid.New()

	tests := []struct {
		name  string
		setup func(d *Deal)
		want  *Error
	}{
		{
			name: "cancelled beats expiry",
			setup: func(d *Deal) {
				d.Status = DealStatusCancelled
				d.ExpiryDate = testNow.Add(-time.Hour)
			},
			want: ErrInvalidState,
		},
		{
			name: "expiry beats capacity",
			setup: func(d *Deal) {
				d.ExpiryDate = testNow.Add(-time.Hour)
				d.CurrentParticipants = d.MaxParticipants
			},
			want: ErrExpired,
		},
		{
			name: "capacity beats duplicate",
			setup: func(d *Deal) {
				d.Participants = append(d.Participants, userID)
				d.CurrentParticipants = d.MaxParticipants
			},
			want: ErrFull,
		},
		{
			name: "duplicate",
			setup: func(d *Deal) {
				d.Participants = append(d.Participants, userID)
				d.CurrentParticipants = 1
			},
			want: ErrDuplicateJoin,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deal := newActiveDeal(3, 0)
			tt.setup(deal)
			err := deal.Join(userID, nil, testNow)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestJoinWithProduct(t *testing.T) {
	t.Run("decrements stock", func(t *testing.T) {
		deal := newActiveDeal(3, 0)
		product := &Product{ID: uuid.New(), CategoryID: deal.CategoryID, Stock: 2, Active: true}

		require.NoError(t, deal.Join(uuid.New(), product, testNow))
		assert.Equal(t, 1, product.Stock)
	})

	t.Run("category mismatch", func(t *testing.T) {
		deal := newActiveDeal(3, 0)
		product := &Product{ID: uuid.New(), CategoryID: uuid.New(), Stock: 2, Active: true}

		assert.ErrorIs(t, deal.Join(uuid.New(), product, testNow), ErrCategoryMismatch)
		assert.Equal(t, 2, product.Stock)
		assert.Equal(t, 0, deal.CurrentParticipants)
	})

	t.Run("out of stock", func(t *testing.T) {
		deal := newActiveDeal(3, 0)
		product := &Product{ID: uuid.New(), CategoryID: deal.CategoryID, Stock: 0, Active: true}

		assert.ErrorIs(t, deal.Join(uuid.New(), product, testNow), ErrOutOfStock)
		assert.Empty(t, deal.Participants)
	})
}

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to DealStatus
		allowed  bool
	}{
		{DealStatusPending, DealStatusActive, true},
		{DealStatusPending, DealStatusCancelled, true},
		{DealStatusPending, DealStatusCompleted, false},
		{DealStatusActive, DealStatusCompleted, true},
		{DealStatusActive, DealStatusExpired, true},
		{DealStatusActive, DealStatusCancelled, true},
		{DealStatusActive, DealStatusPending, false},
		{DealStatusCompleted, DealStatusActive, false},
		{DealStatusExpired, DealStatusActive, false},
		{DealStatusCancelled, DealStatusActive, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestApplyRejectsMaxBelowCurrent(t *testing.T) {
	deal := newActiveDeal(5, 3)
	max := 2

	err := deal.Apply(DealPatch{MaxParticipants: &max}, testNow)

	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, 5, deal.MaxParticipants)
}

func TestApplyRejectsMinAboveMax(t *testing.T) {
	deal := newActiveDeal(5, 0)
	min := 6

	err := deal.Apply(DealPatch{MinParticipants: &min}, testNow)

	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, 1, deal.MinParticipants)
}

func TestApplyCompletesWhenMaxLoweredToCurrent(t *testing.T) {
	deal := newActiveDeal(5, 3)
	max := 3

	require.NoError(t, deal.Apply(DealPatch{MaxParticipants: &max}, testNow))
	assert.Equal(t, DealStatusCompleted, deal.Status)
}

func TestApplyActivatesPendingDeal(t *testing.T) {
	deal := newActiveDeal(5, 0)
	deal.Status = DealStatusPending
	active := DealStatusActive
	price := 60.0

	require.NoError(t, deal.Apply(DealPatch{Status: &active, Jam3aPrice: &price}, testNow))
	assert.Equal(t, DealStatusActive, deal.Status)
	assert.Equal(t, 40, deal.DiscountPercentage)
}

func TestApplyOnTerminalDealFails(t *testing.T) {
	deal := newActiveDeal(2, 2)
	deal.Status = DealStatusCompleted
	title := "new"

	assert.ErrorIs(t, deal.Apply(DealPatch{Title: &title}, testNow), ErrInvalidState)
}

func TestApplyExtendingOverdueDealExpiresIt(t *testing.T) {
	deal := newActiveDeal(5, 1)
	deal.ExpiryDate = testNow.Add(-24 * time.Hour)
	extended := testNow.Add(7 * 24 * time.Hour)

	err := deal.Apply(DealPatch{ExpiryDate: &extended}, testNow)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, DealStatusExpired, deal.Status)
	assert.Equal(t, testNow.Add(-24*time.Hour), deal.ExpiryDate)

	assert.ErrorIs(t, deal.Join(uuid.New(), nil, testNow), ErrExpired)
	assert.Equal(t, 1, deal.CurrentParticipants)
}

func TestFormatDealCode(t *testing.T) {
	assert.Equal(t, "JAM-007", FormatDealCode(7))
	assert.Equal(t, "JAM-1234", FormatDealCode(1234))
}

func TestErrorCodesMatchByCode(t *testing.T) {
	err := NewInvalidStateError(DealStatusCancelled)
	assert.True(t, errors.Is(err, ErrInvalidState))
	assert.False(t, errors.Is(err, ErrExpired))
	assert.Equal(t, CodeInvalidState, CodeOf(err))
	assert.Equal(t, CodeServerError, CodeOf(errors.New("boom")))
}

func TestProperty_JoinNeverExceedsCapacity(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("participants never exceed max and completion matches fullness", prop.ForAll(
		func(max int, attempts int, repeatEvery int) bool {
			deal := newActiveDeal(max, 0)
			users := []uuid.UUID{}

			for i := 0; i < attempts; i++ {
				userID := uuid.New()
				if len(users) > 0 && i%repeatEvery == 0 {
					userID = users[i%len(users)]
				}
				if err := deal.Join(userID, nil, testNow); err == nil {
					users = append(users, userID)
				}

				if deal.CurrentParticipants > deal.MaxParticipants {
					t.Logf("FAIL: %d participants for max %d", deal.CurrentParticipants, deal.MaxParticipants)
					return false
				}
				if deal.CurrentParticipants != len(deal.Participants) {
					t.Logf("FAIL: count %d does not match participant list %d", deal.CurrentParticipants, len(deal.Participants))
					return false
				}
				if deal.IsFull() != (deal.Status == DealStatusCompleted) {
					t.Logf("FAIL: full=%v but status=%s", deal.IsFull(), deal.Status)
					return false
				}
			}

			seen := map[uuid.UUID]bool{}
			for _, id := range deal.Participants {
				if seen[id] {
					return false
				}
				seen[id] = true
			}
			return true
		},
		gen.IntRange(1, 20),
		gen.IntRange(0, 40),
		gen.IntRange(1, 5),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestProperty_ExpiredDealsRejectEveryJoin(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("no join succeeds after expiry", prop.ForAll(
		func(max int, current int, minutesPast int) bool {
			if current >= max {
				current = max - 1
			}
			deal := newActiveDeal(max, current)
			deal.ExpiryDate = testNow.Add(-time.Duration(minutesPast) * time.Minute)

			err := deal.Join(uuid.New(), nil, testNow)
			return errors.Is(err, ErrExpired) && deal.CurrentParticipants == current
		},
		gen.IntRange(1, 50),
		gen.IntRange(0, 49),
		gen.IntRange(1, 100000),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
