package booking

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/OAddae2/Playpark-server/cmd/models"
	"github.com/OAddae2/Playpark-server/cmd/utils"
	"github.com/OAddae2/Playpark-server/service/notification"
	"github.com/OAddae2/Playpark-server/service/payment"
	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

type BookingHandler struct {
	db       *gorm.DB
	payments *payment.Client
}

func NewBookingHandler(db *gorm.DB) *BookingHandler {
	return &BookingHandler{db: db, payments: payment.NewClient()}
}

// NewBookingHandlerWith lets tests inject a payment client pointed at a
// fake processor.
func NewBookingHandlerWith(db *gorm.DB, payments *payment.Client) *BookingHandler {
	return &BookingHandler{db: db, payments: payments}
}

func (h *BookingHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/checkout", utils.AuthMiddleware(h.Checkout)).Methods("POST")
	router.HandleFunc("/bookings", utils.AuthMiddleware(h.GetMyBookings)).Methods("GET")
	router.HandleFunc("/bookings/cancel", utils.AuthMiddleware(h.CancelBooking)).Methods("POST")
	router.HandleFunc("/bookings/webhook", h.HandlePaystackWebhook).Methods("POST")
	router.HandleFunc("/bookings/{id}", utils.AuthMiddleware(h.GetBooking)).Methods("GET")

	router.HandleFunc("/admin/bookings", utils.AdminMiddleware(h.db, h.GetAllBookings)).Methods("GET")
	router.HandleFunc("/admin/bookings/{id}/status", utils.AdminMiddleware(h.db, h.UpdateBookingStatus)).Methods("PATCH")
}

// Checkout creates a pending booking, opens a hosted checkout session for
// it and returns the authorization URL. If session creation fails the
// booking is marked failed rather than left pending forever.
func (h *BookingHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var checkoutRequest struct {
		PackageID    uint   `json:"package_id"`
		PartyDate    string `json:"party_date"`
		ChildName    string `json:"child_name"`
		GuestCount   int    `json:"guest_count"`
		ContactEmail string `json:"contact_email"`
		Notes        string `json:"notes"`
	}

	if err := json.NewDecoder(r.Body).Decode(&checkoutRequest); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	partyDate, err := time.Parse(time.RFC3339, checkoutRequest.PartyDate)
	if err != nil {
		http.Error(w, "Invalid party date", http.StatusBadRequest)
		return
	}
	if checkoutRequest.ChildName == "" {
		http.Error(w, "Child name is required", http.StatusBadRequest)
		return
	}

	var user models.User
	if err := h.db.First(&user, userID).Error; err != nil {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}

	contactEmail := checkoutRequest.ContactEmail
	if contactEmail == "" {
		contactEmail = user.Email
	}

	var pkg models.PartyPackage
	if err := h.db.Where("active = ?", true).First(&pkg, checkoutRequest.PackageID).Error; err != nil {
		http.Error(w, "Package not found", http.StatusNotFound)
		return
	}
	if pkg.MaxGuests > 0 && checkoutRequest.GuestCount > pkg.MaxGuests {
		http.Error(w, fmt.Sprintf("Package allows at most %d guests", pkg.MaxGuests), http.StatusBadRequest)
		return
	}

	booking := models.Booking{
		UserID:       userID,
		PackageID:    pkg.ID,
		PartyDate:    partyDate,
		ChildName:    checkoutRequest.ChildName,
		GuestCount:   checkoutRequest.GuestCount,
		ContactEmail: contactEmail,
		Notes:        checkoutRequest.Notes,
		Amount:       pkg.Price,
		Status:       models.BookingPendingPayment,
	}

	if err := h.db.Create(&booking).Error; err != nil {
		http.Error(w, "Error creating booking", http.StatusInternalServerError)
		return
	}

	reference := fmt.Sprintf("BKG-%d-%d", booking.ID, time.Now().Unix())

	session, err := h.payments.InitializeTransaction(payment.InitializeRequest{
		Email:       contactEmail,
		Amount:      toMinorUnits(pkg.Price),
		Reference:   reference,
		CallbackURL: os.Getenv("CHECKOUT_SUCCESS_URL"),
		Metadata: map[string]interface{}{
			"booking_id": booking.ID,
			"user_id":    userID,
			"package_id": pkg.ID,
		},
	})
	if err != nil {
		log.Printf("Error initializing payment for booking %d: %v", booking.ID, err)
		// Saga cleanup: never leave the booking silently pending.
		if err := h.db.Model(&booking).Update("status", models.BookingFailed).Error; err != nil {
			log.Printf("Error marking booking %d failed: %v", booking.ID, err)
		}
		http.Error(w, "Error initializing payment", http.StatusBadGateway)
		return
	}

	booking.PaymentRef = reference
	booking.SessionURL = session.AuthorizationURL
	if err := h.db.Save(&booking).Error; err != nil {
		http.Error(w, "Error updating booking", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"authorization_url": session.AuthorizationURL,
		"reference":         reference,
		"booking_id":        booking.ID,
	})
}

// CancelBooking cancels a booking, refunding the full charged amount when
// a captured payment exists. Terminal bookings are rejected.
func (h *BookingHandler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var cancelRequest struct {
		BookingID uint `json:"booking_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&cancelRequest); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var booking models.Booking
	if err := h.db.First(&booking, cancelRequest.BookingID).Error; err != nil {
		http.Error(w, "Booking not found", http.StatusNotFound)
		return
	}

	if !h.callerOwnsOrAdmin(userID, &booking) {
		http.Error(w, "Booking is not linked to your account", http.StatusForbidden)
		return
	}

	if _, err := Transition(booking.Status, models.BookingCanceled); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	charged := booking.Status == models.BookingPaid || booking.Status == models.BookingAccepted
	if charged && booking.PaymentRef != "" {
		refund, err := h.payments.CreateRefund(booking.PaymentRef, toMinorUnits(booking.Amount))
		if err != nil {
			log.Printf("Error refunding booking %d: %v", booking.ID, err)
			http.Error(w, "Error processing refund", http.StatusBadGateway)
			return
		}
		booking.RefundID = strconv.FormatInt(refund.ID, 10)
		booking.RefundAmount = fromMinorUnits(refund.Amount)
		booking.RefundStatus = refund.Status
	}

	booking.Status = models.BookingCanceled
	if err := h.db.Save(&booking).Error; err != nil {
		http.Error(w, "Error canceling booking", http.StatusInternalServerError)
		return
	}

	sendCancellationEmail(&booking)
	notification.SendToUser(h.db, booking.UserID, "Booking canceled",
		fmt.Sprintf("Your booking for %s's party was canceled.", booking.ChildName),
		map[string]string{"booking_id": strconv.FormatUint(uint64(booking.ID), 10)})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"booking_id":    booking.ID,
		"status":        booking.Status,
		"refund_id":     booking.RefundID,
		"refund_amount": booking.RefundAmount,
		"refund_status": booking.RefundStatus,
	})
}

func (h *BookingHandler) GetMyBookings(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var bookings []models.Booking
	if err := h.db.Where("user_id = ?", userID).Preload("Package").
		Order("party_date DESC").Find(&bookings).Error; err != nil {
		http.Error(w, "Error retrieving bookings", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(bookings)
}

func (h *BookingHandler) GetBooking(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	vars := mux.Vars(r)
	bookingID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid booking ID", http.StatusBadRequest)
		return
	}

	var booking models.Booking
	if err := h.db.Preload("Package").First(&booking, bookingID).Error; err != nil {
		http.Error(w, "Booking not found", http.StatusNotFound)
		return
	}

	if !h.callerOwnsOrAdmin(userID, &booking) {
		http.Error(w, "Booking is not linked to your account", http.StatusForbidden)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(booking)
}

func (h *BookingHandler) GetAllBookings(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize := 100

	query := h.db.Model(&models.Booking{}).Preload("User").Preload("Package")

	if status := r.URL.Query().Get("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if date := r.URL.Query().Get("date"); date != "" {
		query = query.Where("party_date = ?", date)
	}

	var total int64
	query.Count(&total)

	var bookings []models.Booking
	if err := query.Offset((page - 1) * pageSize).Limit(pageSize).
		Order("party_date DESC").Find(&bookings).Error; err != nil {
		http.Error(w, "Error retrieving bookings", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"bookings":    bookings,
		"total":       total,
		"page":        page,
		"page_size":   pageSize,
		"total_pages": (total + int64(pageSize) - 1) / int64(pageSize),
	})
}

// UpdateBookingStatus applies an admin transition (accept, reject,
// complete) after validating it against the status machine.
func (h *BookingHandler) UpdateBookingStatus(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	bookingID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid booking ID", http.StatusBadRequest)
		return
	}

	var statusUpdate struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&statusUpdate); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var booking models.Booking
	if err := h.db.First(&booking, bookingID).Error; err != nil {
		http.Error(w, "Booking not found", http.StatusNotFound)
		return
	}

	newStatus, err := Transition(booking.Status, statusUpdate.Status)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	if err := h.db.Model(&booking).Update("status", newStatus).Error; err != nil {
		http.Error(w, "Error updating booking status", http.StatusInternalServerError)
		return
	}
	booking.Status = newStatus

	notification.SendToUser(h.db, booking.UserID, "Booking update",
		fmt.Sprintf("Your booking for %s's party is now %s.", booking.ChildName, newStatus),
		map[string]string{"booking_id": strconv.FormatUint(bookingID, 10)})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(booking)
}

// HandlePaystackWebhook processes charge.success events for both party
// bookings (BKG- references) and course purchases (CRS- references).
func (h *BookingHandler) HandlePaystackWebhook(w http.ResponseWriter, r *http.Request) {
	paystackSignature := r.Header.Get("X-Paystack-Signature")
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Error reading request body", http.StatusBadRequest)
		return
	}

	mac := hmac.New(sha512.New, []byte(os.Getenv("PAYSTACK_SECRET_KEY")))
	mac.Write(body)
	expectedMAC := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(paystackSignature), []byte(expectedMAC)) {
		http.Error(w, "Invalid signature", http.StatusBadRequest)
		return
	}

	var webhookPayload struct {
		Event string `json:"event"`
		Data  struct {
			Reference string  `json:"reference"`
			Status    string  `json:"status"`
			Amount    float64 `json:"amount"`
		} `json:"data"`
	}

	if err := json.Unmarshal(body, &webhookPayload); err != nil {
		http.Error(w, "Error parsing webhook payload", http.StatusBadRequest)
		return
	}

	if webhookPayload.Event != "charge.success" {
		w.WriteHeader(http.StatusOK)
		return
	}

	tx := h.db.Begin()

	switch {
	case strings.HasPrefix(webhookPayload.Data.Reference, "BKG-"):
		var booking models.Booking
		if err := tx.Where("payment_ref = ?", webhookPayload.Data.Reference).First(&booking).Error; err != nil {
			tx.Rollback()
			http.Error(w, "Booking not found", http.StatusNotFound)
			return
		}

		newStatus, err := Transition(booking.Status, models.BookingPaid)
		if err != nil {
			// Duplicate webhook for an already-settled booking.
			tx.Rollback()
			w.WriteHeader(http.StatusOK)
			return
		}
		booking.Status = newStatus
		if err := tx.Save(&booking).Error; err != nil {
			tx.Rollback()
			http.Error(w, "Error updating booking", http.StatusInternalServerError)
			return
		}

		transaction := models.Transaction{
			UserID:    booking.UserID,
			Amount:    webhookPayload.Data.Amount / 100,
			Method:    "Paystack",
			Purpose:   "Party booking",
			Reference: webhookPayload.Data.Reference,
		}
		if err := tx.Create(&transaction).Error; err != nil {
			tx.Rollback()
			http.Error(w, "Error creating transaction", http.StatusInternalServerError)
			return
		}

		if err := tx.Commit().Error; err != nil {
			http.Error(w, "Error completing webhook processing", http.StatusInternalServerError)
			return
		}

		sendConfirmationEmail(&booking)
		notification.SendToUser(h.db, booking.UserID, "Payment received",
			fmt.Sprintf("Payment confirmed for %s's party.", booking.ChildName),
			map[string]string{"booking_id": strconv.FormatUint(uint64(booking.ID), 10)})

	case strings.HasPrefix(webhookPayload.Data.Reference, "CRS-"):
		var purchase models.CoursePurchase
		if err := tx.Where("payment_ref = ?", webhookPayload.Data.Reference).First(&purchase).Error; err != nil {
			tx.Rollback()
			http.Error(w, "Purchase not found", http.StatusNotFound)
			return
		}

		if purchase.Status == models.PurchaseActive {
			// Duplicate webhook for an already-active purchase.
			tx.Rollback()
			w.WriteHeader(http.StatusOK)
			return
		}

		purchase.Status = models.PurchaseActive
		if err := tx.Save(&purchase).Error; err != nil {
			tx.Rollback()
			http.Error(w, "Error updating purchase", http.StatusInternalServerError)
			return
		}

		transaction := models.Transaction{
			UserID:    purchase.UserID,
			Amount:    webhookPayload.Data.Amount / 100,
			Method:    "Paystack",
			Purpose:   "Course purchase",
			Reference: webhookPayload.Data.Reference,
		}
		if err := tx.Create(&transaction).Error; err != nil {
			tx.Rollback()
			http.Error(w, "Error creating transaction", http.StatusInternalServerError)
			return
		}

		if err := tx.Commit().Error; err != nil {
			http.Error(w, "Error completing webhook processing", http.StatusInternalServerError)
			return
		}

	default:
		tx.Rollback()
		log.Printf("Unknown payment reference: %s", webhookPayload.Data.Reference)
	}

	w.WriteHeader(http.StatusOK)
}

func (h *BookingHandler) callerOwnsOrAdmin(userID uint, booking *models.Booking) bool {
	if booking.UserID == userID {
		return true
	}
	var user models.User
	if err := h.db.First(&user, userID).Error; err != nil {
		return false
	}
	return user.IsAdmin()
}

func toMinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

func fromMinorUnits(amount int64) float64 {
	return float64(amount) / 100
}
