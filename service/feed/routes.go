package feed

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/OAddae2/Playpark-server/cmd/models"
	"github.com/OAddae2/Playpark-server/cmd/utils"
	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

const feedPageSize = 10

type PostHandler struct {
	db *gorm.DB
}

func NewPostHandler(db *gorm.DB) *PostHandler {
	return &PostHandler{db: db}
}

func (h *PostHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/posts", utils.AuthMiddleware(h.CreatePost)).Methods("POST")
	router.HandleFunc("/posts", h.GetPosts).Methods("GET")
	router.HandleFunc("/posts/{id}", h.GetPost).Methods("GET")
	router.HandleFunc("/posts/{id}", utils.AuthMiddleware(h.DeletePost)).Methods("DELETE")

	router.HandleFunc("/posts/{id}/like", utils.AuthMiddleware(h.ToggleLike)).Methods("POST")

	router.HandleFunc("/posts/{id}/comments", utils.AuthMiddleware(h.AddComment)).Methods("POST")
	router.HandleFunc("/posts/{id}/comments", h.GetComments).Methods("GET")
	router.HandleFunc("/posts/{id}/comments/{commentId}", utils.AuthMiddleware(h.DeleteComment)).Methods("DELETE")
}

// CreatePost creates a new post with optional image uploads.
func (h *PostHandler) CreatePost(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	err = r.ParseMultipartForm(50 << 20)
	if err != nil {
		http.Error(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	content := r.FormValue("content")
	if content == "" {
		http.Error(w, "Content is required", http.StatusBadRequest)
		return
	}

	tx := h.db.Begin()

	post := models.Post{
		UserID:  userID,
		Content: content,
	}

	if err := tx.Create(&post).Error; err != nil {
		tx.Rollback()
		http.Error(w, "Error creating post", http.StatusInternalServerError)
		return
	}

	files := r.MultipartForm.File["images"]
	for i, fileHeader := range files {
		file, err := fileHeader.Open()
		if err != nil {
			tx.Rollback()
			http.Error(w, "Error processing image", http.StatusInternalServerError)
			return
		}
		defer file.Close()

		imageURL, err := utils.SaveImage(file, fileHeader)
		if err != nil {
			tx.Rollback()
			http.Error(w, fmt.Sprintf("Error saving image: %v", err), http.StatusInternalServerError)
			return
		}

		image := models.PostImage{
			PostID:  post.ID,
			URL:     imageURL,
			Caption: r.FormValue(fmt.Sprintf("caption_%d", i)),
		}

		if err := tx.Create(&image).Error; err != nil {
			tx.Rollback()
			utils.DeleteImage(imageURL)
			http.Error(w, "Error saving image record", http.StatusInternalServerError)
			return
		}
	}

	if err := tx.Commit().Error; err != nil {
		http.Error(w, "Error saving post", http.StatusInternalServerError)
		return
	}

	h.db.Preload("User").Preload("Images").First(&post, post.ID)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(post)
}

// GetPosts returns a page of the feed in descending creation order. The
// cursor is the created-at timestamp of the last post of the previous
// page; an empty next_cursor means no further pages.
func (h *PostHandler) GetPosts(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 50 {
		limit = feedPageSize
	}

	query := h.db.Model(&models.Post{}).Preload("User").Preload("Images").
		Order("created_at DESC, id DESC").Limit(limit)

	if cursor := r.URL.Query().Get("cursor"); cursor != "" {
		cursorTime, err := time.Parse(time.RFC3339Nano, cursor)
		if err != nil {
			http.Error(w, "Invalid cursor", http.StatusBadRequest)
			return
		}
		query = query.Where("created_at < ?", cursorTime)
	}

	var posts []models.Post
	if err := query.Find(&posts).Error; err != nil {
		http.Error(w, "Error retrieving posts", http.StatusInternalServerError)
		return
	}

	nextCursor := ""
	if len(posts) == limit {
		nextCursor = posts[len(posts)-1].CreatedAt.Format(time.RFC3339Nano)
	}

	// Liked map for the caller, when a valid token came along.
	liked := map[uint]bool{}
	if userID, ok := utils.UserIDFromRequest(r); ok && len(posts) > 0 {
		postIDs := make([]uint, 0, len(posts))
		for _, post := range posts {
			postIDs = append(postIDs, post.ID)
		}
		var likes []models.Like
		if err := h.db.Where("user_id = ? AND post_id IN ?", userID, postIDs).Find(&likes).Error; err == nil {
			for _, like := range likes {
				liked[like.PostID] = true
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"posts":       posts,
		"next_cursor": nextCursor,
		"liked":       liked,
	})
}

func (h *PostHandler) GetPost(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	postID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid post ID", http.StatusBadRequest)
		return
	}

	var post models.Post
	if err := h.db.Preload("User").Preload("Images").Preload("Comments.User").First(&post, postID).Error; err != nil {
		http.Error(w, "Post not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(post)
}

// DeletePost deletes a post with its likes, comments and images. Only the
// author or an admin may delete; the check lives here, not in any UI.
func (h *PostHandler) DeletePost(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	vars := mux.Vars(r)
	postID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid post ID", http.StatusBadRequest)
		return
	}

	var post models.Post
	if err := h.db.First(&post, postID).Error; err != nil {
		http.Error(w, "Post not found", http.StatusNotFound)
		return
	}

	if post.UserID != userID && !h.isAdmin(userID) {
		http.Error(w, "You can only delete your own posts", http.StatusForbidden)
		return
	}

	tx := h.db.Begin()

	if err := tx.Where("post_id = ?", postID).Delete(&models.Like{}).Error; err != nil {
		tx.Rollback()
		http.Error(w, "Error deleting likes", http.StatusInternalServerError)
		return
	}

	if err := tx.Where("post_id = ?", postID).Delete(&models.Comment{}).Error; err != nil {
		tx.Rollback()
		http.Error(w, "Error deleting comments", http.StatusInternalServerError)
		return
	}

	if err := tx.Where("post_id = ?", postID).Delete(&models.PostImage{}).Error; err != nil {
		tx.Rollback()
		http.Error(w, "Error deleting images", http.StatusInternalServerError)
		return
	}

	if err := tx.Delete(&post).Error; err != nil {
		tx.Rollback()
		http.Error(w, "Error deleting post", http.StatusInternalServerError)
		return
	}

	tx.Commit()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "Post deleted successfully",
	})
}

// ToggleLike creates or removes the caller's like marker and adjusts the
// counter in the same transaction. Calling it twice restores the original
// state, which keeps client retries safe.
func (h *PostHandler) ToggleLike(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	vars := mux.Vars(r)
	postID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid post ID", http.StatusBadRequest)
		return
	}

	var post models.Post
	if err := h.db.First(&post, postID).Error; err != nil {
		http.Error(w, "Post not found", http.StatusNotFound)
		return
	}

	tx := h.db.Begin()

	liked := false
	var existingLike models.Like
	err = tx.Where("user_id = ? AND post_id = ?", userID, postID).First(&existingLike).Error
	switch {
	case err == nil:
		if err := tx.Unscoped().Delete(&existingLike).Error; err != nil {
			tx.Rollback()
			http.Error(w, "Error unliking post", http.StatusInternalServerError)
			return
		}
		if err := tx.Model(&models.Post{}).Where("id = ? AND likes_count > 0", postID).
			UpdateColumn("likes_count", gorm.Expr("likes_count - ?", 1)).Error; err != nil {
			tx.Rollback()
			http.Error(w, "Error updating likes count", http.StatusInternalServerError)
			return
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		like := models.Like{
			UserID: userID,
			PostID: uint(postID),
		}
		if err := tx.Create(&like).Error; err != nil {
			tx.Rollback()
			http.Error(w, "Error liking post", http.StatusInternalServerError)
			return
		}
		if err := tx.Model(&models.Post{}).Where("id = ?", postID).
			UpdateColumn("likes_count", gorm.Expr("likes_count + ?", 1)).Error; err != nil {
			tx.Rollback()
			http.Error(w, "Error updating likes count", http.StatusInternalServerError)
			return
		}
		liked = true
	default:
		tx.Rollback()
		http.Error(w, "Error checking like state", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit().Error; err != nil {
		http.Error(w, "Error saving like", http.StatusInternalServerError)
		return
	}

	h.db.First(&post, postID)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"liked":       liked,
		"likes_count": post.LikesCount,
	})
}

// AddComment appends a comment and bumps the post's comment counter.
func (h *PostHandler) AddComment(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	vars := mux.Vars(r)
	postID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid post ID", http.StatusBadRequest)
		return
	}

	var comment models.Comment
	if err := json.NewDecoder(r.Body).Decode(&comment); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if comment.Content == "" {
		http.Error(w, "Content is required", http.StatusBadRequest)
		return
	}

	var post models.Post
	if err := h.db.First(&post, postID).Error; err != nil {
		http.Error(w, "Post not found", http.StatusNotFound)
		return
	}

	comment.UserID = userID
	comment.PostID = uint(postID)

	tx := h.db.Begin()

	if err := tx.Create(&comment).Error; err != nil {
		tx.Rollback()
		http.Error(w, "Error creating comment", http.StatusInternalServerError)
		return
	}

	if err := tx.Model(&models.Post{}).Where("id = ?", postID).
		UpdateColumn("comments_count", gorm.Expr("comments_count + ?", 1)).Error; err != nil {
		tx.Rollback()
		http.Error(w, "Error updating comments count", http.StatusInternalServerError)
		return
	}

	tx.Commit()

	h.db.Preload("User").First(&comment, comment.ID)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(comment)
}

// GetComments returns the authoritative comment list for a post, oldest
// first, with page/offset pagination.
func (h *PostHandler) GetComments(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	postID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid post ID", http.StatusBadRequest)
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize := 50

	var comments []models.Comment
	var total int64

	query := h.db.Model(&models.Comment{}).Where("post_id = ?", postID).Preload("User")
	query.Count(&total)

	if err := query.Offset((page - 1) * pageSize).Limit(pageSize).
		Order("created_at ASC").Find(&comments).Error; err != nil {
		http.Error(w, "Error retrieving comments", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"comments":    comments,
		"total":       total,
		"page":        page,
		"page_size":   pageSize,
		"total_pages": (total + int64(pageSize) - 1) / int64(pageSize),
	})
}

// DeleteComment deletes a comment (author or admin only) and decrements
// the post's counter.
func (h *PostHandler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	vars := mux.Vars(r)
	commentID, err := strconv.ParseUint(vars["commentId"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid comment ID", http.StatusBadRequest)
		return
	}

	var comment models.Comment
	if err := h.db.First(&comment, commentID).Error; err != nil {
		http.Error(w, "Comment not found", http.StatusNotFound)
		return
	}

	if comment.UserID != userID && !h.isAdmin(userID) {
		http.Error(w, "You can only delete your own comments", http.StatusForbidden)
		return
	}

	tx := h.db.Begin()

	if err := tx.Delete(&comment).Error; err != nil {
		tx.Rollback()
		http.Error(w, "Error deleting comment", http.StatusInternalServerError)
		return
	}

	if err := tx.Model(&models.Post{}).Where("id = ? AND comments_count > 0", comment.PostID).
		UpdateColumn("comments_count", gorm.Expr("comments_count - ?", 1)).Error; err != nil {
		tx.Rollback()
		http.Error(w, "Error updating comments count", http.StatusInternalServerError)
		return
	}

	tx.Commit()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "Comment deleted successfully",
	})
}

func (h *PostHandler) isAdmin(userID uint) bool {
	var user models.User
	if err := h.db.First(&user, userID).Error; err != nil {
		return false
	}
	return user.IsAdmin()
}
