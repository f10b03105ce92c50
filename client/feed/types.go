// Package feed is the client-side data layer for the social feed: a
// persisted per-identity snapshot cache, cursor pagination against the
// Playpark API, and optimistic mutations with command-scoped rollback.
package feed

import "time"

type Post struct {
	ID            uint      `json:"id"`
	UserID        uint      `json:"user_id"`
	AuthorName    string    `json:"author_name,omitempty"`
	AuthorEmail   string    `json:"author_email,omitempty"`
	Content       string    `json:"content,omitempty"`
	ImageURL      string    `json:"image_url,omitempty"`
	LikesCount    int       `json:"likes_count"`
	CommentsCount int       `json:"comments_count"`
	CreatedAt     time.Time `json:"created_at"`
}

type Comment struct {
	ID         uint      `json:"id"`
	PostID     uint      `json:"post_id"`
	UserID     uint      `json:"user_id"`
	AuthorName string    `json:"author_name,omitempty"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
}

// Page is one server page of the feed. An empty NextCursor means there
// are no further pages.
type Page struct {
	Posts      []Post
	NextCursor string
	Liked      map[uint]bool
}

// Snapshot is the persisted cache state for one identity: the last-known
// post list (most recent first), the pagination cursor and the caller's
// like map. Advisory only; the server stays the source of truth.
type Snapshot struct {
	Posts      []Post        `json:"posts"`
	NextCursor string        `json:"next_cursor"`
	Liked      map[uint]bool `json:"liked"`
}
