package models

import "gorm.io/gorm"

const (
	PurchasePending = "pending"
	PurchaseActive  = "active"
	PurchaseFailed  = "failed"
)

type Course struct {
	gorm.Model
	Title       string  `gorm:"column:title;size:255;not null" json:"title"`
	Description string  `gorm:"column:description;type:text" json:"description"`
	Price       float64 `gorm:"column:price;not null" json:"price"`
	CoverURL    string  `gorm:"column:cover_url;size:500" json:"cover_url,omitempty"`
	Published   bool    `gorm:"column:published;default:false" json:"published"`

	Videos []Video `gorm:"foreignKey:CourseID" json:"videos,omitempty"`
}

type Video struct {
	gorm.Model
	CourseID uint   `gorm:"column:course_id;not null;index" json:"course_id"`
	Position int    `gorm:"column:position;default:0" json:"position"`
	Title    string `gorm:"column:title;size:255;not null" json:"title"`
	URL      string `gorm:"column:url;size:500;not null" json:"url"`
	Duration int    `gorm:"column:duration;default:0" json:"duration"` // seconds
}

type CoursePurchase struct {
	gorm.Model
	UserID     uint   `gorm:"column:user_id;not null;index" json:"user_id"`
	CourseID   uint   `gorm:"column:course_id;not null;index" json:"course_id"`
	Status     string `gorm:"column:status;size:50;not null;default:pending" json:"status"`
	PaymentRef string `gorm:"column:payment_ref;size:255;index" json:"payment_ref"`
	Amount     float64 `gorm:"column:amount;not null" json:"amount"`

	User   *User   `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Course *Course `gorm:"foreignKey:CourseID" json:"course,omitempty"`
}
