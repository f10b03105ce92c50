package models

import "gorm.io/gorm"

type Post struct {
	gorm.Model
	UserID        uint        `gorm:"column:user_id;not null;index" json:"user_id"`
	Content       string      `gorm:"column:content;type:text" json:"content"`
	LikesCount    int         `gorm:"column:likes_count;default:0" json:"likes_count"`
	CommentsCount int         `gorm:"column:comments_count;default:0" json:"comments_count"`
	User          *User       `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Images        []PostImage `gorm:"foreignKey:PostID" json:"images,omitempty"`
	Comments      []Comment   `gorm:"foreignKey:PostID" json:"comments,omitempty"`
}

type PostImage struct {
	gorm.Model
	PostID  uint   `gorm:"column:post_id;not null;index" json:"post_id"`
	URL     string `gorm:"column:url;not null" json:"url"`
	Caption string `gorm:"column:caption" json:"caption,omitempty"`
}

// Like is a per-(post, user) existence record; presence means liked.
type Like struct {
	gorm.Model
	UserID uint `gorm:"column:user_id;not null;uniqueIndex:idx_like_user_post" json:"user_id"`
	PostID uint `gorm:"column:post_id;not null;uniqueIndex:idx_like_user_post" json:"post_id"`
}

type Comment struct {
	gorm.Model
	UserID  uint   `gorm:"column:user_id;not null;index" json:"user_id"`
	PostID  uint   `gorm:"column:post_id;not null;index" json:"post_id"`
	Content string `gorm:"column:content;type:text;not null" json:"content"`
	User    *User  `gorm:"foreignKey:UserID" json:"user,omitempty"`
}
