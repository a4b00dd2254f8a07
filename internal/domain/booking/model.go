package booking

import (
	"strings"
	"time"

	"soulease/backend/internal/domain/geo"
)

const Collection = "bookings"

// Status is the stored, admin-facing booking state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// UserStatus is the coarser state shown to customers.
type UserStatus string

const (
	UserUpcoming  UserStatus = "upcoming"
	UserCompleted UserStatus = "completed"
	UserCancelled UserStatus = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

func (s Status) UserStatus() UserStatus {
	switch s {
	case StatusCompleted:
		return UserCompleted
	case StatusCancelled:
		return UserCancelled
	default:
		return UserUpcoming
	}
}

// CanTransition allows pending→confirmed→completed and any non-terminal
// state → cancelled.
func CanTransition(from, to Status) bool {
	if from.Terminal() || !to.Valid() {
		return false
	}
	switch to {
	case StatusConfirmed:
		return from == StatusPending
	case StatusCompleted:
		return from == StatusConfirmed
	case StatusCancelled:
		return true
	}
	return false
}

type Booking struct {
	ID            string     `firestore:"-" json:"id"`
	TherapistID   string     `firestore:"therapistId" json:"therapistId"`
	TherapistName string     `firestore:"therapistName,omitempty" json:"therapistName,omitempty"`
	UserID        string     `firestore:"userId,omitempty" json:"userId,omitempty"`
	UserName      string     `firestore:"userName,omitempty" json:"userName,omitempty"`
	Phone         string     `firestore:"phone,omitempty" json:"phone,omitempty"`
	ServiceName   string     `firestore:"serviceName" json:"serviceName"`
	ServicePrice  float64    `firestore:"servicePrice" json:"servicePrice"`
	DurationMin   int        `firestore:"durationMin" json:"durationMin"`
	ScheduledAt   time.Time  `firestore:"scheduledAt" json:"scheduledAt"`
	Address       string     `firestore:"address,omitempty" json:"address,omitempty"`
	Location      geo.Point  `firestore:"location" json:"location"`
	DistanceKm    float64    `firestore:"distanceKm" json:"distanceKm"`
	TravelFee     float64    `firestore:"travelFee" json:"travelFee"`
	Total         float64    `firestore:"total" json:"total"`
	Status        Status     `firestore:"status" json:"status"`
	Rating        int        `firestore:"rating,omitempty" json:"rating,omitempty"`
	Review        string     `firestore:"review,omitempty" json:"review,omitempty"`
	ReviewedAt    *time.Time `firestore:"reviewedAt,omitempty" json:"reviewedAt,omitempty"`
	Note          string     `firestore:"note,omitempty" json:"note,omitempty"`
	CreatedAt     time.Time  `firestore:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time  `firestore:"updatedAt" json:"updatedAt"`

	UserStatus UserStatus `firestore:"-" json:"userStatus"`
}

// Reviewed reports whether the customer already left a rating.
func (b Booking) Reviewed() bool { return b.Rating > 0 }

type CreateBookingInput struct {
	TherapistID  string    `json:"therapistId"`
	UserName     string    `json:"userName"`
	Phone        string    `json:"phone"`
	ServiceName  string    `json:"serviceName"`
	ServicePrice float64   `json:"servicePrice"`
	DurationMin  int       `json:"durationMin"`
	ScheduledAt  string    `json:"scheduledAt"`
	Address      string    `json:"address"`
	Location     geo.Point `json:"location"`
	Note         string    `json:"note,omitempty"`
}

func (in *CreateBookingInput) Trim() {
	in.TherapistID = strings.TrimSpace(in.TherapistID)
	in.UserName = strings.TrimSpace(in.UserName)
	in.Phone = strings.TrimSpace(in.Phone)
	in.ServiceName = strings.TrimSpace(in.ServiceName)
	in.ScheduledAt = strings.TrimSpace(in.ScheduledAt)
	in.Address = strings.TrimSpace(in.Address)
	in.Note = strings.TrimSpace(in.Note)
}

type ReviewInput struct {
	Rating int    `json:"rating"`
	Text   string `json:"text"`
}

// Actor is the caller of a state-changing operation.
type Actor struct {
	UID         string
	Admin       bool
	TherapistID string
}
