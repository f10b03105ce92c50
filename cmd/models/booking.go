package models

import (
	"time"

	"gorm.io/gorm"
)

// Booking statuses. pending_payment, paid, accepted, rejected, completed,
// canceled and failed; completed, canceled, rejected and failed are terminal.
const (
	BookingPendingPayment = "pending_payment"
	BookingPaid           = "paid"
	BookingAccepted       = "accepted"
	BookingRejected       = "rejected"
	BookingCompleted      = "completed"
	BookingCanceled       = "canceled"
	BookingFailed         = "failed"
)

type PartyPackage struct {
	gorm.Model
	Name        string  `gorm:"column:name;size:255;not null" json:"name"`
	Description string  `gorm:"column:description;type:text" json:"description"`
	Price       float64 `gorm:"column:price;not null" json:"price"`
	MaxGuests   int     `gorm:"column:max_guests;default:0" json:"max_guests"`
	ImageURL    string  `gorm:"column:image_url;size:500" json:"image_url,omitempty"`
	Active      bool    `gorm:"column:active;default:true" json:"active"`
}

func (PartyPackage) TableName() string {
	return "party_packages"
}

type Booking struct {
	gorm.Model
	UserID       uint      `gorm:"column:user_id;not null;index" json:"user_id"`
	PackageID    uint      `gorm:"column:package_id;not null" json:"package_id"`
	PartyDate    time.Time `gorm:"column:party_date;not null" json:"party_date"`
	ChildName    string    `gorm:"column:child_name;size:255;not null" json:"child_name"`
	GuestCount   int       `gorm:"column:guest_count;default:0" json:"guest_count"`
	ContactEmail string    `gorm:"column:contact_email;size:255;not null" json:"contact_email"`
	Notes        string    `gorm:"column:notes;type:text" json:"notes,omitempty"`
	Amount       float64   `gorm:"column:amount;not null" json:"amount"`
	Status       string    `gorm:"column:status;size:50;not null;default:pending_payment" json:"status"`
	PaymentRef   string    `gorm:"column:payment_ref;size:255;index" json:"payment_ref,omitempty"`
	SessionURL   string    `gorm:"column:session_url;size:500" json:"session_url,omitempty"`
	RefundID     string    `gorm:"column:refund_id;size:255" json:"refund_id,omitempty"`
	RefundAmount float64   `gorm:"column:refund_amount;default:0" json:"refund_amount,omitempty"`
	RefundStatus string    `gorm:"column:refund_status;size:50" json:"refund_status,omitempty"`

	User    *User         `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Package *PartyPackage `gorm:"foreignKey:PackageID" json:"package,omitempty"`
}
