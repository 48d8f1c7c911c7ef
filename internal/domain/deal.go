package domain

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DealStatus is the lifecycle state of a deal
type DealStatus string

const (
	DealStatusPending   DealStatus = "pending"
	DealStatusActive    DealStatus = "active"
	DealStatusCompleted DealStatus = "completed"
	DealStatusCancelled DealStatus = "cancelled"
	DealStatusExpired   DealStatus = "expired"
)

// dealTransitions lists every edge of the deal state machine.
// Terminal states have no outgoing edges.
var dealTransitions = map[DealStatus][]DealStatus{
	DealStatusPending: {DealStatusActive, DealStatusCancelled},
	DealStatusActive:  {DealStatusCompleted, DealStatusCancelled, DealStatusExpired},
}

// Valid reports whether s is a known status
func (s DealStatus) Valid() bool {
	switch s {
	case DealStatusPending, DealStatusActive, DealStatusCompleted, DealStatusCancelled, DealStatusExpired:
		return true
	}
	return false
}

// Terminal reports whether no transition leaves s
func (s DealStatus) Terminal() bool {
	return s == DealStatusCompleted || s == DealStatusCancelled || s == DealStatusExpired
}

// CanTransitionTo reports whether the state machine allows s -> next
func (s DealStatus) CanTransitionTo(next DealStatus) bool {
	for _, allowed := range dealTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Deal is a group-buying offer ("Jam3a")
type Deal struct {
	ID                  uuid.UUID   `json:"id" db:"id"`
	Code                string      `json:"code" db:"code"`
	Title               string      `json:"title" db:"title"`
	TitleAr             string      `json:"title_ar" db:"title_ar"`
	Description         string      `json:"description" db:"description"`
	DescriptionAr       string      `json:"description_ar" db:"description_ar"`
	CategoryID          uuid.UUID   `json:"category_id" db:"category_id"`
	Category            *Category   `json:"category,omitempty"`
	RegularPrice        float64     `json:"regular_price" db:"regular_price"`
	Jam3aPrice          float64     `json:"jam3a_price" db:"jam3a_price"`
	DiscountPercentage  int         `json:"discount_percentage" db:"discount_percentage"`
	MinParticipants     int         `json:"min_participants" db:"min_participants"`
	MaxParticipants     int         `json:"max_participants" db:"max_participants"`
	CurrentParticipants int         `json:"current_participants" db:"current_participants"`
	ExpiryDate          time.Time   `json:"expiry_date" db:"expiry_date"`
	Status              DealStatus  `json:"status" db:"status"`
	Featured            bool        `json:"featured" db:"featured"`
	ImageURL            string      `json:"image_url" db:"image_url"`
	CreatedBy           uuid.UUID   `json:"created_by" db:"created_by"`
	Participants        []uuid.UUID `json:"participants"`
	CreatedAt           time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time   `json:"updated_at" db:"updated_at"`
}

// Participant records one user's membership in a deal
type Participant struct {
	DealID    uuid.UUID  `json:"deal_id" db:"deal_id"`
	UserID    uuid.UUID  `json:"user_id" db:"user_id"`
	ProductID *uuid.UUID `json:"product_id,omitempty" db:"product_id"`
	JoinedAt  time.Time  `json:"joined_at" db:"joined_at"`
}

// FormatDealCode renders a sequence number as a human-readable deal code
func FormatDealCode(seq int64) string {
	return fmt.Sprintf("JAM-%03d", seq)
}

// DiscountFor returns the rounded percentage saved by the jam3a price
func DiscountFor(regularPrice, jam3aPrice float64) int {
	if regularPrice <= 0 {
		return 0
	}
	return int(math.Round((regularPrice - jam3aPrice) / regularPrice * 100))
}

// Validate checks the invariants that hold for every stored deal
func (d *Deal) Validate() error {
	if strings.TrimSpace(d.Title) == "" {
		return NewValidationError("title is required")
	}
	if d.CategoryID == uuid.Nil {
		return NewValidationError("category is required")
	}
	if d.RegularPrice <= 0 {
		return NewValidationError("regular price must be greater than 0")
	}
	if d.Jam3aPrice <= 0 || d.Jam3aPrice >= d.RegularPrice {
		return NewValidationError("jam3a price must be greater than 0 and less than the regular price")
	}
	if d.MinParticipants < 1 {
		return NewValidationError("min participants must be at least 1")
	}
	if d.MinParticipants > d.MaxParticipants {
		return NewValidationError("min participants (%d) must not exceed max participants (%d)", d.MinParticipants, d.MaxParticipants)
	}
	if d.CurrentParticipants < 0 || d.CurrentParticipants > d.MaxParticipants {
		return NewValidationError("max participants (%d) must not be below current participants (%d)", d.MaxParticipants, d.CurrentParticipants)
	}
	if !d.Status.Valid() {
		return NewValidationError("invalid status %q", d.Status)
	}
	if d.ExpiryDate.IsZero() {
		return NewValidationError("expiry date is required")
	}
	return nil
}

// IsFull reports whether every slot is taken
func (d *Deal) IsFull() bool {
	return d.CurrentParticipants >= d.MaxParticipants
}

// HasParticipant reports whether userID already joined
func (d *Deal) HasParticipant(userID uuid.UUID) bool {
	for _, id := range d.Participants {
		if id == userID {
			return true
		}
	}
	return false
}

// TransitionTo moves the deal to next if the state machine allows it
func (d *Deal) TransitionTo(next DealStatus) error {
	if d.Status == next {
		return nil
	}
	if !d.Status.CanTransitionTo(next) {
		return NewError(CodeInvalidState, fmt.Sprintf("cannot change deal status from %s to %s", d.Status, next))
	}
	d.Status = next
	return nil
}

// Reconcile applies the transitions that time and capacity force on an
// active deal. It reports whether the status changed.
func (d *Deal) Reconcile(now time.Time) bool {
	if d.Status != DealStatusActive {
		return false
	}
	switch {
	case now.After(d.ExpiryDate):
		d.Status = DealStatusExpired
	case d.IsFull():
		d.Status = DealStatusCompleted
	default:
		return false
	}
	return true
}

// ExpireIfOverdue moves an active deal past its expiry date to expired and
// reports whether it did
func (d *Deal) ExpireIfOverdue(now time.Time) bool {
	if d.Status == DealStatusActive && now.After(d.ExpiryDate) {
		d.Status = DealStatusExpired
		return true
	}
	return false
}

// CheckJoinable runs the join preconditions that depend on the deal alone,
// in precedence order: status, expiry, capacity, duplicate.
func (d *Deal) CheckJoinable(userID uuid.UUID, now time.Time) error {
	switch {
	case d.Status == DealStatusExpired:
		return ErrExpired
	case d.Status == DealStatusCompleted && d.IsFull():
		return ErrFull
	case d.Status != DealStatusActive:
		return NewInvalidStateError(d.Status)
	}
	if now.After(d.ExpiryDate) {
		return ErrExpired
	}
	if d.IsFull() {
		return ErrFull
	}
	if d.HasParticipant(userID) {
		return ErrDuplicateJoin
	}
	return nil
}

// CheckProduct verifies that product may back participation in the deal
func (d *Deal) CheckProduct(product *Product) error {
	if product.CategoryID != d.CategoryID {
		return ErrCategoryMismatch
	}
	if !product.Active || product.Stock <= 0 {
		return ErrOutOfStock
	}
	return nil
}

// Join validates and applies a join in memory. On error nothing but a
// lazily corrected status is changed. On success the participant is added,
// the count incremented, the product stock decremented, and the deal
// completed when it becomes full.
func (d *Deal) Join(userID uuid.UUID, product *Product, now time.Time) error {
	d.ExpireIfOverdue(now)
	if err := d.CheckJoinable(userID, now); err != nil {
		return err
	}
	if product != nil {
		if err := d.CheckProduct(product); err != nil {
			return err
		}
		product.Stock--
	}

	d.Participants = append(d.Participants, userID)
	d.CurrentParticipants++
	if d.IsFull() {
		d.Status = DealStatusCompleted
	}
	d.UpdatedAt = now
	return nil
}

// DealPatch carries a partial update; nil fields are left unchanged
type DealPatch struct {
	Title           *string
	TitleAr         *string
	Description     *string
	DescriptionAr   *string
	CategoryID      *uuid.UUID
	RegularPrice    *float64
	Jam3aPrice      *float64
	MinParticipants *int
	MaxParticipants *int
	ExpiryDate      *time.Time
	Status          *DealStatus
	Featured        *bool
	ImageURL        *string
}

// Apply merges the patch into the deal and re-validates it. Only the
// pending->active and *->cancelled transitions may be requested; completion
// and expiry are driven by joins and time.
func (d *Deal) Apply(p DealPatch, now time.Time) error {
	// an overdue deal is expired before the patch is considered
	d.ExpireIfOverdue(now)
	if d.Status.Terminal() {
		return NewError(CodeInvalidState, fmt.Sprintf("deal in status %s cannot be modified", d.Status))
	}

	next := *d
	if p.Title != nil {
		next.Title = *p.Title
	}
	if p.TitleAr != nil {
		next.TitleAr = *p.TitleAr
	}
	if p.Description != nil {
		next.Description = *p.Description
	}
	if p.DescriptionAr != nil {
		next.DescriptionAr = *p.DescriptionAr
	}
	if p.CategoryID != nil {
		next.CategoryID = *p.CategoryID
	}
	if p.RegularPrice != nil {
		next.RegularPrice = *p.RegularPrice
	}
	if p.Jam3aPrice != nil {
		next.Jam3aPrice = *p.Jam3aPrice
	}
	if p.MinParticipants != nil {
		next.MinParticipants = *p.MinParticipants
	}
	if p.MaxParticipants != nil {
		next.MaxParticipants = *p.MaxParticipants
	}
	if p.ExpiryDate != nil {
		next.ExpiryDate = *p.ExpiryDate
	}
	if p.Featured != nil {
		next.Featured = *p.Featured
	}
	if p.ImageURL != nil {
		next.ImageURL = *p.ImageURL
	}
	if p.Status != nil {
		if *p.Status != DealStatusActive && *p.Status != DealStatusCancelled {
			return NewValidationError("status can only be set to %s or %s", DealStatusActive, DealStatusCancelled)
		}
		if err := next.TransitionTo(*p.Status); err != nil {
			return err
		}
	}

	if err := next.Validate(); err != nil {
		return err
	}
	if p.ExpiryDate != nil && next.Status != DealStatusCancelled && !p.ExpiryDate.After(now) {
		return NewValidationError("expiry date must be in the future")
	}

	next.DiscountPercentage = DiscountFor(next.RegularPrice, next.Jam3aPrice)
	next.UpdatedAt = now
	next.Reconcile(now)
	*d = next
	return nil
}
