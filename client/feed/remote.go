package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// RemoteStore is the server-side post store as the controller sees it.
// Implemented by HTTPStore against the Playpark API and by fakes in
// tests.
type RemoteStore interface {
	FirstPage(ctx context.Context) (*Page, error)
	PageAfter(ctx context.Context, cursor string) (*Page, error)
	CreatePost(ctx context.Context, content string) (*Post, error)
	DeletePost(ctx context.Context, postID uint) error
	ToggleLike(ctx context.Context, postID uint) (bool, int, error)
	AddComment(ctx context.Context, postID uint, content string) (*Comment, error)
	DeleteComment(ctx context.Context, postID, commentID uint) error
	Comments(ctx context.Context, postID uint) ([]Comment, error)
}

// HTTPStore talks to the Playpark feed API.
type HTTPStore struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewHTTPStore(baseURL, token string) *HTTPStore {
	return &HTTPStore{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

type wireUser struct {
	FullName string `json:"full_name"`
	Email    string `json:"email"`
}

type wirePost struct {
	ID            uint      `json:"ID"`
	CreatedAt     time.Time `json:"CreatedAt"`
	UserID        uint      `json:"user_id"`
	Content       string    `json:"content"`
	LikesCount    int       `json:"likes_count"`
	CommentsCount int       `json:"comments_count"`
	User          *wireUser `json:"user"`
	Images        []struct {
		URL string `json:"url"`
	} `json:"images"`
}

type wireComment struct {
	ID        uint      `json:"ID"`
	CreatedAt time.Time `json:"CreatedAt"`
	UserID    uint      `json:"user_id"`
	PostID    uint      `json:"post_id"`
	Content   string    `json:"content"`
	User      *wireUser `json:"user"`
}

func (p wirePost) toPost() Post {
	post := Post{
		ID:            p.ID,
		UserID:        p.UserID,
		Content:       p.Content,
		LikesCount:    p.LikesCount,
		CommentsCount: p.CommentsCount,
		CreatedAt:     p.CreatedAt,
	}
	if p.User != nil {
		post.AuthorName = p.User.FullName
		post.AuthorEmail = p.User.Email
	}
	if len(p.Images) > 0 {
		post.ImageURL = p.Images[0].URL
	}
	return post
}

func (c wireComment) toComment() Comment {
	comment := Comment{
		ID:        c.ID,
		PostID:    c.PostID,
		UserID:    c.UserID,
		Content:   c.Content,
		CreatedAt: c.CreatedAt,
	}
	if c.User != nil {
		comment.AuthorName = c.User.FullName
	}
	return comment
}

func (s *HTTPStore) FirstPage(ctx context.Context) (*Page, error) {
	return s.page(ctx, "")
}

func (s *HTTPStore) PageAfter(ctx context.Context, cursor string) (*Page, error) {
	return s.page(ctx, cursor)
}

func (s *HTTPStore) page(ctx context.Context, cursor string) (*Page, error) {
	endpoint := s.baseURL + "/api/v1/posts"
	if cursor != "" {
		endpoint += "?cursor=" + url.QueryEscape(cursor)
	}

	var resp struct {
		Posts      []wirePost      `json:"posts"`
		NextCursor string          `json:"next_cursor"`
		Liked      map[string]bool `json:"liked"`
	}
	if err := s.do(ctx, "GET", endpoint, nil, "", &resp); err != nil {
		return nil, err
	}

	page := &Page{
		Posts:      make([]Post, 0, len(resp.Posts)),
		NextCursor: resp.NextCursor,
		Liked:      make(map[uint]bool, len(resp.Liked)),
	}
	for _, p := range resp.Posts {
		page.Posts = append(page.Posts, p.toPost())
	}
	for id, liked := range resp.Liked {
		postID, err := strconv.ParseUint(id, 10, 64)
		if err != nil {
			continue
		}
		page.Liked[uint(postID)] = liked
	}
	return page, nil
}

func (s *HTTPStore) CreatePost(ctx context.Context, content string) (*Post, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.WriteField("content", content); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	var created wirePost
	err := s.do(ctx, "POST", s.baseURL+"/api/v1/posts", &body, writer.FormDataContentType(), &created)
	if err != nil {
		return nil, err
	}
	post := created.toPost()
	return &post, nil
}

func (s *HTTPStore) DeletePost(ctx context.Context, postID uint) error {
	return s.do(ctx, "DELETE", fmt.Sprintf("%s/api/v1/posts/%d", s.baseURL, postID), nil, "", nil)
}

func (s *HTTPStore) ToggleLike(ctx context.Context, postID uint) (bool, int, error) {
	var resp struct {
		Liked      bool `json:"liked"`
		LikesCount int  `json:"likes_count"`
	}
	err := s.do(ctx, "POST", fmt.Sprintf("%s/api/v1/posts/%d/like", s.baseURL, postID), nil, "", &resp)
	if err != nil {
		return false, 0, err
	}
	return resp.Liked, resp.LikesCount, nil
}

func (s *HTTPStore) AddComment(ctx context.Context, postID uint, content string) (*Comment, error) {
	payload, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return nil, err
	}

	var created wireComment
	err = s.do(ctx, "POST", fmt.Sprintf("%s/api/v1/posts/%d/comments", s.baseURL, postID),
		bytes.NewReader(payload), "application/json", &created)
	if err != nil {
		return nil, err
	}
	comment := created.toComment()
	return &comment, nil
}

func (s *HTTPStore) DeleteComment(ctx context.Context, postID, commentID uint) error {
	return s.do(ctx, "DELETE",
		fmt.Sprintf("%s/api/v1/posts/%d/comments/%d", s.baseURL, postID, commentID), nil, "", nil)
}

func (s *HTTPStore) Comments(ctx context.Context, postID uint) ([]Comment, error) {
	var resp struct {
		Comments []wireComment `json:"comments"`
	}
	err := s.do(ctx, "GET", fmt.Sprintf("%s/api/v1/posts/%d/comments", s.baseURL, postID), nil, "", &resp)
	if err != nil {
		return nil, err
	}

	comments := make([]Comment, 0, len(resp.Comments))
	for _, c := range resp.Comments {
		comments = append(comments, c.toComment())
	}
	return comments, nil
}

func (s *HTTPStore) do(ctx context.Context, method, endpoint string, body io.Reader, contentType string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("feed API %s %s: %s: %s", method, endpoint, resp.Status, bytes.TrimSpace(msg))
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
