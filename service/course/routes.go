package course

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/OAddae2/Playpark-server/cmd/models"
	"github.com/OAddae2/Playpark-server/cmd/utils"
	"github.com/OAddae2/Playpark-server/service/payment"
	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

type CourseHandler struct {
	db       *gorm.DB
	payments *payment.Client
}

func NewCourseHandler(db *gorm.DB) *CourseHandler {
	return &CourseHandler{db: db, payments: payment.NewClient()}
}

func NewCourseHandlerWith(db *gorm.DB, payments *payment.Client) *CourseHandler {
	return &CourseHandler{db: db, payments: payments}
}

func (h *CourseHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/courses", h.GetCourses).Methods("GET")
	router.HandleFunc("/courses/{id}", h.GetCourse).Methods("GET")
	router.HandleFunc("/courses/{id}/videos", utils.AuthMiddleware(h.GetCourseVideos)).Methods("GET")
	router.HandleFunc("/courses/{id}/checkout", utils.AuthMiddleware(h.CheckoutCourse)).Methods("POST")
	router.HandleFunc("/purchases", utils.AuthMiddleware(h.GetMyPurchases)).Methods("GET")

	router.HandleFunc("/admin/courses", utils.AdminMiddleware(h.db, h.CreateCourse)).Methods("POST")
	router.HandleFunc("/admin/courses/{id}", utils.AdminMiddleware(h.db, h.UpdateCourse)).Methods("PUT")
	router.HandleFunc("/admin/courses/{id}/videos", utils.AdminMiddleware(h.db, h.AddVideo)).Methods("POST")
	router.HandleFunc("/admin/videos/{id}", utils.AdminMiddleware(h.db, h.DeleteVideo)).Methods("DELETE")
}

func (h *CourseHandler) GetCourses(w http.ResponseWriter, r *http.Request) {
	var courses []models.Course
	if err := h.db.Where("published = ?", true).Order("created_at DESC").Find(&courses).Error; err != nil {
		http.Error(w, "Error retrieving courses", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(courses)
}

func (h *CourseHandler) GetCourse(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	courseID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid course ID", http.StatusBadRequest)
		return
	}

	var course models.Course
	if err := h.db.Where("published = ?", true).First(&course, courseID).Error; err != nil {
		http.Error(w, "Course not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(course)
}

// GetCourseVideos lists a course's videos, gated on an active purchase.
func (h *CourseHandler) GetCourseVideos(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	vars := mux.Vars(r)
	courseID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid course ID", http.StatusBadRequest)
		return
	}

	if !h.hasActivePurchase(userID, uint(courseID)) && !h.isAdmin(userID) {
		http.Error(w, "Course not purchased", http.StatusForbidden)
		return
	}

	var videos []models.Video
	if err := h.db.Where("course_id = ?", courseID).Order("position ASC").Find(&videos).Error; err != nil {
		http.Error(w, "Error retrieving videos", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(videos)
}

// CheckoutCourse opens a hosted checkout session for a course purchase.
// The purchase activates when the payment webhook lands.
func (h *CourseHandler) CheckoutCourse(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	vars := mux.Vars(r)
	courseID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid course ID", http.StatusBadRequest)
		return
	}

	var course models.Course
	if err := h.db.Where("published = ?", true).First(&course, courseID).Error; err != nil {
		http.Error(w, "Course not found", http.StatusNotFound)
		return
	}

	if h.hasActivePurchase(userID, course.ID) {
		http.Error(w, "Course already purchased", http.StatusConflict)
		return
	}

	var user models.User
	if err := h.db.First(&user, userID).Error; err != nil {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}

	purchase := models.CoursePurchase{
		UserID:   userID,
		CourseID: course.ID,
		Status:   models.PurchasePending,
		Amount:   course.Price,
	}
	if err := h.db.Create(&purchase).Error; err != nil {
		http.Error(w, "Error creating purchase", http.StatusInternalServerError)
		return
	}

	reference := fmt.Sprintf("CRS-%d-%d", purchase.ID, time.Now().Unix())

	session, err := h.payments.InitializeTransaction(payment.InitializeRequest{
		Email:       user.Email,
		Amount:      toMinorUnits(course.Price),
		Reference:   reference,
		CallbackURL: os.Getenv("CHECKOUT_SUCCESS_URL"),
		Metadata: map[string]interface{}{
			"purchase_id": purchase.ID,
			"course_id":   course.ID,
			"user_id":     userID,
		},
	})
	if err != nil {
		log.Printf("Error initializing payment for purchase %d: %v", purchase.ID, err)
		if err := h.db.Model(&purchase).Update("status", models.PurchaseFailed).Error; err != nil {
			log.Printf("Error marking purchase %d failed: %v", purchase.ID, err)
		}
		http.Error(w, "Error initializing payment", http.StatusBadGateway)
		return
	}

	purchase.PaymentRef = reference
	if err := h.db.Save(&purchase).Error; err != nil {
		http.Error(w, "Error updating purchase", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"authorization_url": session.AuthorizationURL,
		"reference":         reference,
		"purchase_id":       purchase.ID,
	})
}

func (h *CourseHandler) GetMyPurchases(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var purchases []models.CoursePurchase
	if err := h.db.Where("user_id = ?", userID).Preload("Course").Find(&purchases).Error; err != nil {
		http.Error(w, "Error retrieving purchases", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(purchases)
}

func (h *CourseHandler) CreateCourse(w http.ResponseWriter, r *http.Request) {
	var course models.Course
	if err := json.NewDecoder(r.Body).Decode(&course); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if course.Title == "" || course.Price < 0 {
		http.Error(w, "Title and a non-negative price are required", http.StatusBadRequest)
		return
	}

	if err := h.db.Create(&course).Error; err != nil {
		http.Error(w, "Error creating course", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(course)
}

func (h *CourseHandler) UpdateCourse(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	courseID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid course ID", http.StatusBadRequest)
		return
	}

	var course models.Course
	if err := h.db.First(&course, courseID).Error; err != nil {
		http.Error(w, "Course not found", http.StatusNotFound)
		return
	}

	var updateData struct {
		Title       *string  `json:"title"`
		Description *string  `json:"description"`
		Price       *float64 `json:"price"`
		CoverURL    *string  `json:"cover_url"`
		Published   *bool    `json:"published"`
	}
	if err := json.NewDecoder(r.Body).Decode(&updateData); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if updateData.Title != nil {
		course.Title = *updateData.Title
	}
	if updateData.Description != nil {
		course.Description = *updateData.Description
	}
	if updateData.Price != nil {
		course.Price = *updateData.Price
	}
	if updateData.CoverURL != nil {
		course.CoverURL = *updateData.CoverURL
	}
	if updateData.Published != nil {
		course.Published = *updateData.Published
	}

	if err := h.db.Save(&course).Error; err != nil {
		http.Error(w, "Error updating course", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(course)
}

func (h *CourseHandler) AddVideo(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	courseID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid course ID", http.StatusBadRequest)
		return
	}

	var course models.Course
	if err := h.db.First(&course, courseID).Error; err != nil {
		http.Error(w, "Course not found", http.StatusNotFound)
		return
	}

	var video models.Video
	if err := json.NewDecoder(r.Body).Decode(&video); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if video.Title == "" || video.URL == "" {
		http.Error(w, "Title and URL are required", http.StatusBadRequest)
		return
	}
	video.CourseID = course.ID

	if err := h.db.Create(&video).Error; err != nil {
		http.Error(w, "Error creating video", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(video)
}

func (h *CourseHandler) DeleteVideo(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	result := h.db.Delete(&models.Video{}, vars["id"])
	if result.Error != nil {
		http.Error(w, "Error deleting video", http.StatusInternalServerError)
		return
	}
	if result.RowsAffected == 0 {
		http.Error(w, "Video not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "Video deleted successfully",
	})
}

func (h *CourseHandler) hasActivePurchase(userID, courseID uint) bool {
	var purchase models.CoursePurchase
	err := h.db.Where("user_id = ? AND course_id = ? AND status = ?",
		userID, courseID, models.PurchaseActive).First(&purchase).Error
	return !errors.Is(err, gorm.ErrRecordNotFound) && err == nil
}

func (h *CourseHandler) isAdmin(userID uint) bool {
	var user models.User
	if err := h.db.First(&user, userID).Error; err != nil {
		return false
	}
	return user.IsAdmin()
}

func toMinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
