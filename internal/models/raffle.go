package models

import (
	"fmt"
	"slices"
	"time"

	"raffle/internal/escrow"
)

const (
	MaxItemNameLen        = 32
	MaxItemDescriptionLen = 64
	MaxItemImageRefLen    = 128
	MaxTrackingInfoLen    = 32

	// MaxParticipants bounds the number of distinct buyers, not tickets.
	MaxParticipants = 32

	// PriceScale converts whole token units into the 6 decimal fixed point unit.
	PriceScale uint64 = 1_000_000
)

// RaffleStatus is the lifecycle state of a raffle.
type RaffleStatus string

const (
	StatusActive    RaffleStatus = "active"
	StatusDrawing   RaffleStatus = "drawing"
	StatusCompleted RaffleStatus = "completed"
	StatusCancelled RaffleStatus = "cancelled"
	StatusRefunded  RaffleStatus = "refunded"
	StatusEnded     RaffleStatus = "ended"
)

// ParseRaffleStatus validates a status from a query string.
func ParseRaffleStatus(s string) (RaffleStatus, error) {
	switch st := RaffleStatus(s); st {
	case StatusActive, StatusDrawing, StatusCompleted, StatusCancelled, StatusRefunded, StatusEnded:
		return st, nil
	}
	return "", fmt.Errorf("unknown raffle status %q", s)
}

// DeliveryStatus tracks the item after a winner exists. The zero value means
// no winner has been drawn yet.
type DeliveryStatus string

const (
	DeliveryNone      DeliveryStatus = ""
	DeliveryPending   DeliveryStatus = "pending"
	DeliveryShipped   DeliveryStatus = "shipped"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryDisputed  DeliveryStatus = "disputed"
	DeliveryResolved  DeliveryStatus = "resolved"
)

// Raffle is the persisted state of one raffle.
type Raffle struct {
	ID                  uint64   `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Seller              Identity `gorm:"type:varchar(64);not null;index" json:"seller"`
	PaymentDenomination Identity `gorm:"type:varchar(64);not null" json:"paymentDenomination"`

	ItemName        string `gorm:"type:varchar(32);not null" json:"itemName"`
	ItemDescription string `gorm:"type:varchar(64)" json:"itemDescription"`
	ItemImageRef    string `gorm:"type:varchar(128)" json:"itemImageRef"`

	SellingPrice uint64 `gorm:"not null" json:"sellingPrice"`
	TicketPrice  uint64 `gorm:"not null" json:"ticketPrice"`
	MinTickets   uint32 `gorm:"not null" json:"minTickets"`
	MaxTickets   uint32 `gorm:"not null" json:"maxTickets"`
	Deadline     int64  `gorm:"not null;index" json:"deadline"`

	Participants   []Identity   `gorm:"serializer:json" json:"participants"`
	TotalEntries   uint64       `gorm:"not null;default:0" json:"totalEntries"`
	TotalCollected uint64       `gorm:"not null;default:0" json:"totalCollected"`
	Progress       uint32       `gorm:"not null;default:0" json:"progress"`
	IsSoldOut      bool         `gorm:"not null;default:false" json:"isSoldOut"`
	Status         RaffleStatus `gorm:"type:varchar(16);not null;index" json:"status"`

	Winner           *Identity `gorm:"type:varchar(64)" json:"winner,omitempty"`
	Claimed          bool      `gorm:"not null;default:false" json:"claimed"`
	RandomnessSource *string   `gorm:"type:varchar(128)" json:"randomnessSource,omitempty"`

	DeliveryStatus  DeliveryStatus `gorm:"type:varchar(16)" json:"deliveryStatus,omitempty"`
	TrackingInfo    *string        `gorm:"type:varchar(32)" json:"trackingInfo,omitempty"`
	ShippedAt       *int64         `json:"shippedAt,omitempty"`
	DeliveredAt     *int64         `json:"deliveredAt,omitempty"`
	DisputeDeadline *int64         `json:"disputeDeadline,omitempty"`

	Escrow escrow.Ledger `gorm:"embedded;embeddedPrefix:escrow_" json:"escrow"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (Raffle) TableName() string {
	return "raffles"
}

// HasParticipant reports whether the identity already holds a participant slot.
func (r *Raffle) HasParticipant(id Identity) bool {
	return slices.Contains(r.Participants, id)
}

// HasWinner reports whether a draw has completed.
func (r *Raffle) HasWinner() bool {
	return r.Winner != nil
}

// Clone returns a deep copy so callers can mutate it without touching the
// stored record.
func (r *Raffle) Clone() *Raffle {
	c := *r
	c.Participants = slices.Clone(r.Participants)
	c.Winner = clonePtr(r.Winner)
	c.RandomnessSource = clonePtr(r.RandomnessSource)
	c.TrackingInfo = clonePtr(r.TrackingInfo)
	c.ShippedAt = clonePtr(r.ShippedAt)
	c.DeliveredAt = clonePtr(r.DeliveredAt)
	c.DisputeDeadline = clonePtr(r.DisputeDeadline)
	c.Escrow = r.Escrow.Clone()
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// EscrowAccount names the escrow balance owned by a raffle.
func EscrowAccount(raffleID uint64) string {
	return fmt.Sprintf("escrow:%d", raffleID)
}

// Counter is the persisted form of the raffle id sequence.
type Counter struct {
	Name  string `gorm:"primaryKey;type:varchar(32)"`
	Value uint64 `gorm:"not null;default:0"`
}

func (Counter) TableName() string {
	return "counters"
}
