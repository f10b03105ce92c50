package feed

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// State tracks hydration progress.
type State int

const (
	StateUninitialized State = iota
	StateCacheHydrated
	StateNetworkSyncing
	StateReady
)

func (s State) String() string {
	switch s {
	case StateCacheHydrated:
		return "cache-hydrated"
	case StateNetworkSyncing:
		return "network-syncing"
	case StateReady:
		return "ready"
	default:
		return "uninitialized"
	}
}

// Controller owns the visible feed state for one identity: hydration from
// cache then network, cursor pagination, and optimistic mutations that
// roll back to their own before-snapshot on failure.
//
// Every mutation is an optimistic command: capture the narrow slice of
// state it touches, apply the local change (visible before the network
// call is dispatched), persist the cache, attempt the remote effect, and
// on failure restore exactly what was captured. Commands never restore a
// global snapshot, so a failed command cannot clobber a concurrent one.
type Controller struct {
	store RemoteStore
	cache *Cache

	mu         sync.Mutex
	wg         sync.WaitGroup
	identity   string
	state      State
	posts      []Post
	nextCursor string
	liked      map[uint]bool
	comments   map[uint][]Comment

	// Optimistic entries need stable IDs before the server assigns one;
	// temp IDs count down from the top of the range.
	nextTempID uint
}

func NewController(store RemoteStore, cache *Cache, identity string) *Controller {
	if identity == "" {
		identity = GuestIdentity
	}
	return &Controller{
		store:      store,
		cache:      cache,
		identity:   identity,
		liked:      make(map[uint]bool),
		comments:   make(map[uint][]Comment),
		nextTempID: ^uint(0),
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Posts returns a copy of the visible post list, most recent first.
func (c *Controller) Posts() []Post {
	c.mu.Lock()
	defer c.mu.Unlock()
	posts := make([]Post, len(c.posts))
	copy(posts, c.posts)
	return posts
}

func (c *Controller) Liked(postID uint) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.liked[postID]
}

func (c *Controller) Comments(postID uint) []Comment {
	c.mu.Lock()
	defer c.mu.Unlock()
	comments := make([]Comment, len(c.comments[postID]))
	copy(comments, c.comments[postID])
	return comments
}

// SetIdentity switches users. The in-memory state is dropped, not carried
// forward; the next Hydrate starts from the new identity's own cache.
func (c *Controller) SetIdentity(identity string) {
	if identity == "" {
		identity = GuestIdentity
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.identity = identity
	c.state = StateUninitialized
	c.posts = nil
	c.nextCursor = ""
	c.liked = make(map[uint]bool)
	c.comments = make(map[uint][]Comment)
}

// Hydrate populates the feed. With a cached snapshot the list is visible
// immediately and a background refresh follows; without one the first
// page is fetched synchronously. A fetch failure while empty leaves an
// empty list; there is no retry loop.
func (c *Controller) Hydrate(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateUninitialized {
		c.mu.Unlock()
		return nil
	}

	snap, err := c.cache.Load(c.identity)
	if err != nil {
		log.Printf("Error loading feed cache for %s: %v", c.identity, err)
	}
	if snap != nil && len(snap.Posts) > 0 {
		c.posts = snap.Posts
		c.nextCursor = snap.NextCursor
		c.liked = snap.Liked
		c.state = StateCacheHydrated
		c.mu.Unlock()

		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.mu.Lock()
			c.state = StateNetworkSyncing
			c.mu.Unlock()
			if err := c.Refresh(ctx); err != nil {
				log.Printf("Background feed refresh failed for %s: %v", c.identity, err)
			}
		}()
		return nil
	}
	c.mu.Unlock()

	return c.Refresh(ctx)
}

// Wait blocks until any background refresh started by Hydrate finishes.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Refresh replaces the visible list with the server's first page. On
// failure the current (possibly stale or empty) list stays visible.
func (c *Controller) Refresh(ctx context.Context) error {
	page, err := c.store.FirstPage(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.state = StateReady
		return err
	}

	c.posts = page.Posts
	c.nextCursor = page.NextCursor
	c.liked = make(map[uint]bool, len(page.Liked))
	for id, liked := range page.Liked {
		c.liked[id] = liked
	}
	c.state = StateReady
	c.persistLocked()
	return nil
}

// LoadMore appends the next page in server order. It reports whether
// further pages remain.
func (c *Controller) LoadMore(ctx context.Context) (bool, error) {
	c.mu.Lock()
	cursor := c.nextCursor
	c.mu.Unlock()

	if cursor == "" {
		return false, nil
	}

	page, err := c.store.PageAfter(ctx, cursor)
	if err != nil {
		return true, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.posts = append(c.posts, page.Posts...)
	c.nextCursor = page.NextCursor
	for id, liked := range page.Liked {
		c.liked[id] = liked
	}
	c.persistLocked()
	return c.nextCursor != "", nil
}

// command is one optimistic mutation. capture returns a restore closure
// scoped to exactly the state the command touches.
type command struct {
	name      string
	capture   func() func()
	apply     func()
	attempt   func(context.Context) error
	reconcile func(context.Context)
}

func (c *Controller) run(ctx context.Context, cmd command) error {
	c.mu.Lock()
	restore := cmd.capture()
	cmd.apply()
	c.persistLocked()
	c.mu.Unlock()

	if err := cmd.attempt(ctx); err != nil {
		log.Printf("Feed %s failed, rolling back: %v", cmd.name, err)
		c.mu.Lock()
		restore()
		c.persistLocked()
		c.mu.Unlock()
		return commandError(cmd.name, err)
	}

	if cmd.reconcile != nil {
		cmd.reconcile(ctx)
	}
	return nil
}

// CreatePost prepends an optimistic post, then swaps in the server's
// version once the create succeeds.
func (c *Controller) CreatePost(ctx context.Context, content string) error {
	var tempID uint
	var created *Post

	return c.run(ctx, command{
		name: "create post",
		capture: func() func() {
			before := make([]Post, len(c.posts))
			copy(before, c.posts)
			return func() { c.posts = before }
		},
		apply: func() {
			tempID = c.nextTempID
			c.nextTempID--
			optimistic := Post{
				ID:        tempID,
				Content:   content,
				CreatedAt: time.Now(),
			}
			c.posts = append([]Post{optimistic}, c.posts...)
		},
		attempt: func(ctx context.Context) error {
			post, err := c.store.CreatePost(ctx, content)
			if err != nil {
				return err
			}
			created = post
			return nil
		},
		reconcile: func(context.Context) {
			c.mu.Lock()
			defer c.mu.Unlock()
			for i := range c.posts {
				if c.posts[i].ID == tempID {
					c.posts[i] = *created
					break
				}
			}
			c.persistLocked()
		},
	})
}

// DeletePost removes a post optimistically.
func (c *Controller) DeletePost(ctx context.Context, postID uint) error {
	return c.run(ctx, command{
		name: "delete post",
		capture: func() func() {
			before := make([]Post, len(c.posts))
			copy(before, c.posts)
			likedBefore, hadLiked := c.liked[postID]
			commentsBefore, hadComments := c.comments[postID]
			return func() {
				c.posts = before
				if hadLiked {
					c.liked[postID] = likedBefore
				}
				if hadComments {
					c.comments[postID] = commentsBefore
				}
			}
		},
		apply: func() {
			posts := c.posts[:0:0]
			for _, post := range c.posts {
				if post.ID != postID {
					posts = append(posts, post)
				}
			}
			c.posts = posts
			delete(c.liked, postID)
			delete(c.comments, postID)
		},
		attempt: func(ctx context.Context) error {
			return c.store.DeletePost(ctx, postID)
		},
	})
}

// ToggleLike flips the like flag and adjusts the counter in one
// synchronous step. The remote call is an idempotent toggle, so a retry
// that lands twice reproduces the original state instead of
// double-counting.
func (c *Controller) ToggleLike(ctx context.Context, postID uint) error {
	return c.run(ctx, command{
		name: "toggle like",
		capture: func() func() {
			likedBefore := c.liked[postID]
			countBefore, found := -1, false
			for i := range c.posts {
				if c.posts[i].ID == postID {
					countBefore, found = c.posts[i].LikesCount, true
					break
				}
			}
			return func() {
				c.liked[postID] = likedBefore
				if found {
					for i := range c.posts {
						if c.posts[i].ID == postID {
							c.posts[i].LikesCount = countBefore
							break
						}
					}
				}
			}
		},
		apply: func() {
			nowLiked := !c.liked[postID]
			c.liked[postID] = nowLiked
			for i := range c.posts {
				if c.posts[i].ID == postID {
					if nowLiked {
						c.posts[i].LikesCount++
					} else if c.posts[i].LikesCount > 0 {
						c.posts[i].LikesCount--
					}
					break
				}
			}
		},
		attempt: func(ctx context.Context) error {
			_, _, err := c.store.ToggleLike(ctx, postID)
			return err
		},
	})
}

// AddComment appends an optimistic comment, then refetches the
// authoritative list so server-assigned IDs and ordering win.
func (c *Controller) AddComment(ctx context.Context, postID uint, content string) error {
	return c.run(ctx, command{
		name: "add comment",
		capture: func() func() {
			before := make([]Comment, len(c.comments[postID]))
			copy(before, c.comments[postID])
			countBefore := c.commentsCountLocked(postID)
			return func() {
				c.comments[postID] = before
				c.setCommentsCountLocked(postID, countBefore)
			}
		},
		apply: func() {
			optimistic := Comment{
				ID:        c.nextTempID,
				PostID:    postID,
				Content:   content,
				CreatedAt: time.Now(),
			}
			c.nextTempID--
			c.comments[postID] = append(c.comments[postID], optimistic)
			c.setCommentsCountLocked(postID, c.commentsCountLocked(postID)+1)
		},
		attempt: func(ctx context.Context) error {
			_, err := c.store.AddComment(ctx, postID, content)
			return err
		},
		reconcile: func(ctx context.Context) {
			authoritative, err := c.store.Comments(ctx, postID)
			if err != nil {
				// Keep the optimistic entry; the next fetch corrects it.
				log.Printf("Error refetching comments for post %d: %v", postID, err)
				return
			}
			c.mu.Lock()
			defer c.mu.Unlock()
			c.comments[postID] = authoritative
			c.setCommentsCountLocked(postID, len(authoritative))
			c.persistLocked()
		},
	})
}

// DeleteComment removes a comment optimistically.
func (c *Controller) DeleteComment(ctx context.Context, postID, commentID uint) error {
	return c.run(ctx, command{
		name: "delete comment",
		capture: func() func() {
			before := make([]Comment, len(c.comments[postID]))
			copy(before, c.comments[postID])
			countBefore := c.commentsCountLocked(postID)
			return func() {
				c.comments[postID] = before
				c.setCommentsCountLocked(postID, countBefore)
			}
		},
		apply: func() {
			comments := c.comments[postID][:0:0]
			for _, comment := range c.comments[postID] {
				if comment.ID != commentID {
					comments = append(comments, comment)
				}
			}
			c.comments[postID] = comments
			if count := c.commentsCountLocked(postID); count > 0 {
				c.setCommentsCountLocked(postID, count-1)
			}
		},
		attempt: func(ctx context.Context) error {
			return c.store.DeleteComment(ctx, postID, commentID)
		},
	})
}

// LoadComments fetches the authoritative comment list for a post.
func (c *Controller) LoadComments(ctx context.Context, postID uint) ([]Comment, error) {
	comments, err := c.store.Comments(ctx, postID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.comments[postID] = comments
	return comments, nil
}

func (c *Controller) commentsCountLocked(postID uint) int {
	for i := range c.posts {
		if c.posts[i].ID == postID {
			return c.posts[i].CommentsCount
		}
	}
	return len(c.comments[postID])
}

func (c *Controller) setCommentsCountLocked(postID uint, count int) {
	for i := range c.posts {
		if c.posts[i].ID == postID {
			c.posts[i].CommentsCount = count
			return
		}
	}
}

func (c *Controller) persistLocked() {
	snap := &Snapshot{
		Posts:      make([]Post, len(c.posts)),
		NextCursor: c.nextCursor,
		Liked:      make(map[uint]bool, len(c.liked)),
	}
	copy(snap.Posts, c.posts)
	for id, liked := range c.liked {
		snap.Liked[id] = liked
	}

	if err := c.cache.Save(c.identity, snap); err != nil {
		log.Printf("Error persisting feed cache for %s: %v", c.identity, err)
	}
}

// Errors returned by the controller wrap the remote failure with the
// command that triggered it.
func commandError(name string, err error) error {
	return fmt.Errorf("%s: %w", name, err)
}
