package booking

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/OAddae2/Playpark-server/cmd/models"
	"github.com/OAddae2/Playpark-server/service/payment"
	"github.com/golang-jwt/jwt/v4"
	"github.com/gorilla/mux"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	if err := db.AutoMigrate(
		&models.User{},
		&models.PartyPackage{},
		&models.Booking{},
		&models.Transaction{},
		&models.Device{},
		&models.Course{},
		&models.CoursePurchase{},
	); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}
	return db
}

func createUser(t *testing.T, db *gorm.DB, email, role string) *models.User {
	t.Helper()
	user := models.User{
		FullName:     "Test Parent",
		Email:        email,
		PasswordHash: "x",
		Role:         role,
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("creating user: %v", err)
	}
	return &user
}

func createPackage(t *testing.T, db *gorm.DB, price float64, maxGuests int) *models.PartyPackage {
	t.Helper()
	pkg := models.PartyPackage{
		Name:      "Jungle Gym Party",
		Price:     price,
		MaxGuests: maxGuests,
		Active:    true,
	}
	if err := db.Create(&pkg).Error; err != nil {
		t.Fatalf("creating package: %v", err)
	}
	return &pkg
}

func authToken(t *testing.T, userID uint) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatUint(uint64(userID), 10),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return token
}

// fakePaystack serves the two endpoints the booking flow touches and
// records what was asked of it.
type fakePaystack struct {
	failInitialize bool
	refundCalled   bool
	refundAmount   int64
	refundRef      string
}

func (f *fakePaystack) server(t *testing.T) *httptest.Server {
	t.Helper()
	handler := http.NewServeMux()
	handler.HandleFunc("/transaction/initialize", func(w http.ResponseWriter, r *http.Request) {
		if f.failInitialize {
			json.NewEncoder(w).Encode(map[string]interface{}{
				"status":  false,
				"message": "insufficient configuration",
			})
			return
		}
		var req struct {
			Reference string `json:"reference"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": true,
			"data": map[string]interface{}{
				"authorization_url": "https://checkout.example.com/" + req.Reference,
				"access_code":       "AC_test",
				"reference":         req.Reference,
			},
		})
	})
	handler.HandleFunc("/refund", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Transaction string `json:"transaction"`
			Amount      int64  `json:"amount"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		f.refundCalled = true
		f.refundRef = req.Transaction
		f.refundAmount = req.Amount
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": true,
			"data": map[string]interface{}{
				"id":     int64(4321),
				"amount": req.Amount,
				"status": "processed",
			},
		})
	})
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func setupHandler(t *testing.T, fake *fakePaystack) (*gorm.DB, *mux.Router) {
	t.Helper()
	t.Setenv("SECRET_KEY", "test-secret")
	t.Setenv("PAYSTACK_SECRET_KEY", "sk_test_fake")

	db := newTestDB(t)
	client := payment.NewClientWith(fake.server(t).URL, "sk_test_fake", nil)
	handler := NewBookingHandlerWith(db, client)

	router := mux.NewRouter()
	handler.RegisterRoutes(router)
	return db, router
}

func doJSON(t *testing.T, router *mux.Router, method, path, token string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			t.Fatalf("encoding request: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCheckoutCreatesSessionAndPendingBooking(t *testing.T) {
	fake := &fakePaystack{}
	db, router := setupHandler(t, fake)
	user := createUser(t, db, "parent@example.com", models.RoleParent)
	pkg := createPackage(t, db, 250.00, 15)

	rec := doJSON(t, router, "POST", "/checkout", authToken(t, user.ID), map[string]interface{}{
		"package_id":  pkg.ID,
		"party_date":  time.Now().Add(14 * 24 * time.Hour).Format(time.RFC3339),
		"child_name":  "Ama",
		"guest_count": 10,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("checkout returned %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		AuthorizationURL string `json:"authorization_url"`
		Reference        string `json:"reference"`
		BookingID        uint   `json:"booking_id"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.AuthorizationURL == "" {
		t.Fatal("no authorization URL returned")
	}
	if !strings.HasPrefix(resp.Reference, "BKG-") {
		t.Fatalf("reference %q does not carry the booking prefix", resp.Reference)
	}

	var booking models.Booking
	if err := db.First(&booking, resp.BookingID).Error; err != nil {
		t.Fatalf("loading booking: %v", err)
	}
	if booking.Status != models.BookingPendingPayment {
		t.Fatalf("booking status = %s, want %s", booking.Status, models.BookingPendingPayment)
	}
	if booking.PaymentRef != resp.Reference {
		t.Fatalf("booking payment ref %q does not match response %q", booking.PaymentRef, resp.Reference)
	}
	if booking.Amount != pkg.Price {
		t.Fatalf("booking amount = %v, want %v", booking.Amount, pkg.Price)
	}
}

func TestCheckoutMarksBookingFailedWhenSessionCreationFails(t *testing.T) {
	fake := &fakePaystack{failInitialize: true}
	db, router := setupHandler(t, fake)
	user := createUser(t, db, "parent@example.com", models.RoleParent)
	pkg := createPackage(t, db, 250.00, 0)

	rec := doJSON(t, router, "POST", "/checkout", authToken(t, user.ID), map[string]interface{}{
		"package_id": pkg.ID,
		"party_date": time.Now().Add(24 * time.Hour).Format(time.RFC3339),
		"child_name": "Ama",
	})
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("checkout returned %d, want %d", rec.Code, http.StatusBadGateway)
	}

	var booking models.Booking
	if err := db.Where("user_id = ?", user.ID).First(&booking).Error; err != nil {
		t.Fatalf("loading booking: %v", err)
	}
	if booking.Status != models.BookingFailed {
		t.Fatalf("booking status = %s, want %s", booking.Status, models.BookingFailed)
	}
}

func TestCheckoutRejectsGuestCountOverPackageLimit(t *testing.T) {
	fake := &fakePaystack{}
	db, router := setupHandler(t, fake)
	user := createUser(t, db, "parent@example.com", models.RoleParent)
	pkg := createPackage(t, db, 250.00, 8)

	rec := doJSON(t, router, "POST", "/checkout", authToken(t, user.ID), map[string]interface{}{
		"package_id":  pkg.ID,
		"party_date":  time.Now().Add(24 * time.Hour).Format(time.RFC3339),
		"child_name":  "Ama",
		"guest_count": 20,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("checkout returned %d, want %d", rec.Code, http.StatusBadRequest)
	}
	var count int64
	db.Model(&models.Booking{}).Count(&count)
	if count != 0 {
		t.Fatalf("booking created despite guest limit violation")
	}
}

func TestCancelPaidBookingRefundsFullAmount(t *testing.T) {
	fake := &fakePaystack{}
	db, router := setupHandler(t, fake)
	user := createUser(t, db, "parent@example.com", models.RoleParent)
	pkg := createPackage(t, db, 199.99, 0)

	booking := models.Booking{
		UserID:       user.ID,
		PackageID:    pkg.ID,
		PartyDate:    time.Now().Add(24 * time.Hour),
		ChildName:    "Kofi",
		ContactEmail: user.Email,
		Amount:       pkg.Price,
		Status:       models.BookingPaid,
		PaymentRef:   "BKG-1-1700000000",
	}
	if err := db.Create(&booking).Error; err != nil {
		t.Fatalf("creating booking: %v", err)
	}

	rec := doJSON(t, router, "POST", "/bookings/cancel", authToken(t, user.ID), map[string]interface{}{
		"booking_id": booking.ID,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel returned %d: %s", rec.Code, rec.Body.String())
	}

	if !fake.refundCalled {
		t.Fatal("refund was not requested")
	}
	if fake.refundRef != booking.PaymentRef {
		t.Fatalf("refund requested against %q, want %q", fake.refundRef, booking.PaymentRef)
	}
	if want := int64(19999); fake.refundAmount != want {
		t.Fatalf("refund amount = %d minor units, want %d", fake.refundAmount, want)
	}

	var updated models.Booking
	if err := db.First(&updated, booking.ID).Error; err != nil {
		t.Fatalf("loading booking: %v", err)
	}
	if updated.Status != models.BookingCanceled {
		t.Fatalf("booking status = %s, want %s", updated.Status, models.BookingCanceled)
	}
	if updated.RefundID == "" || updated.RefundStatus != "processed" {
		t.Fatalf("refund fields not persisted: %+v", updated)
	}
	if updated.RefundAmount != booking.Amount {
		t.Fatalf("refund amount = %v, want %v", updated.RefundAmount, booking.Amount)
	}
}

func TestCancelPendingBookingSkipsRefund(t *testing.T) {
	fake := &fakePaystack{}
	db, router := setupHandler(t, fake)
	user := createUser(t, db, "parent@example.com", models.RoleParent)
	pkg := createPackage(t, db, 100, 0)

	booking := models.Booking{
		UserID:       user.ID,
		PackageID:    pkg.ID,
		PartyDate:    time.Now().Add(24 * time.Hour),
		ChildName:    "Kofi",
		ContactEmail: user.Email,
		Amount:       pkg.Price,
		Status:       models.BookingPendingPayment,
	}
	if err := db.Create(&booking).Error; err != nil {
		t.Fatalf("creating booking: %v", err)
	}

	rec := doJSON(t, router, "POST", "/bookings/cancel", authToken(t, user.ID), map[string]interface{}{
		"booking_id": booking.ID,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel returned %d: %s", rec.Code, rec.Body.String())
	}
	if fake.refundCalled {
		t.Fatal("refund requested for a booking that was never charged")
	}

	var updated models.Booking
	db.First(&updated, booking.ID)
	if updated.Status != models.BookingCanceled {
		t.Fatalf("booking status = %s, want %s", updated.Status, models.BookingCanceled)
	}
}

func TestCancelTerminalBookingConflicts(t *testing.T) {
	fake := &fakePaystack{}
	db, router := setupHandler(t, fake)
	user := createUser(t, db, "parent@example.com", models.RoleParent)
	pkg := createPackage(t, db, 100, 0)

	for _, status := range []string{models.BookingCanceled, models.BookingCompleted} {
		booking := models.Booking{
			UserID:       user.ID,
			PackageID:    pkg.ID,
			PartyDate:    time.Now().Add(24 * time.Hour),
			ChildName:    "Kofi",
			ContactEmail: user.Email,
			Amount:       pkg.Price,
			Status:       status,
		}
		if err := db.Create(&booking).Error; err != nil {
			t.Fatalf("creating booking: %v", err)
		}

		rec := doJSON(t, router, "POST", "/bookings/cancel", authToken(t, user.ID), map[string]interface{}{
			"booking_id": booking.ID,
		})
		if rec.Code != http.StatusConflict {
			t.Fatalf("cancel of %s booking returned %d, want %d", status, rec.Code, http.StatusConflict)
		}
		if fake.refundCalled {
			t.Fatalf("refund requested while canceling a %s booking", status)
		}
	}
}

func TestCancelRequiresOwnershipOrAdmin(t *testing.T) {
	fake := &fakePaystack{}
	db, router := setupHandler(t, fake)
	owner := createUser(t, db, "owner@example.com", models.RoleParent)
	stranger := createUser(t, db, "stranger@example.com", models.RoleParent)
	admin := createUser(t, db, "admin@example.com", models.RoleAdmin)
	pkg := createPackage(t, db, 100, 0)

	booking := models.Booking{
		UserID:       owner.ID,
		PackageID:    pkg.ID,
		PartyDate:    time.Now().Add(24 * time.Hour),
		ChildName:    "Kofi",
		ContactEmail: owner.Email,
		Amount:       pkg.Price,
		Status:       models.BookingPendingPayment,
	}
	if err := db.Create(&booking).Error; err != nil {
		t.Fatalf("creating booking: %v", err)
	}

	rec := doJSON(t, router, "POST", "/bookings/cancel", authToken(t, stranger.ID), map[string]interface{}{
		"booking_id": booking.ID,
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("stranger cancel returned %d, want %d", rec.Code, http.StatusForbidden)
	}

	rec = doJSON(t, router, "POST", "/bookings/cancel", authToken(t, admin.ID), map[string]interface{}{
		"booking_id": booking.ID,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("admin cancel returned %d: %s", rec.Code, rec.Body.String())
	}
}

func signWebhook(body []byte, secret string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func postWebhook(t *testing.T, router *mux.Router, body []byte, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", "/bookings/webhook", bytes.NewReader(body))
	req.Header.Set("X-Paystack-Signature", signature)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestWebhookMarksBookingPaid(t *testing.T) {
	fake := &fakePaystack{}
	db, router := setupHandler(t, fake)
	user := createUser(t, db, "parent@example.com", models.RoleParent)
	pkg := createPackage(t, db, 250.00, 0)

	booking := models.Booking{
		UserID:       user.ID,
		PackageID:    pkg.ID,
		PartyDate:    time.Now().Add(24 * time.Hour),
		ChildName:    "Ama",
		ContactEmail: user.Email,
		Amount:       pkg.Price,
		Status:       models.BookingPendingPayment,
		PaymentRef:   "BKG-7-1700000000",
	}
	if err := db.Create(&booking).Error; err != nil {
		t.Fatalf("creating booking: %v", err)
	}

	body, _ := json.Marshal(map[string]interface{}{
		"event": "charge.success",
		"data": map[string]interface{}{
			"reference": booking.PaymentRef,
			"status":    "success",
			"amount":    25000,
		},
	})

	rec := postWebhook(t, router, body, signWebhook(body, "sk_test_fake"))
	if rec.Code != http.StatusOK {
		t.Fatalf("webhook returned %d: %s", rec.Code, rec.Body.String())
	}

	var updated models.Booking
	db.First(&updated, booking.ID)
	if updated.Status != models.BookingPaid {
		t.Fatalf("booking status = %s, want %s", updated.Status, models.BookingPaid)
	}

	var txn models.Transaction
	if err := db.Where("reference = ?", booking.PaymentRef).First(&txn).Error; err != nil {
		t.Fatalf("transaction row not created: %v", err)
	}
	if txn.Amount != 250.00 {
		t.Fatalf("transaction amount = %v, want 250.00", txn.Amount)
	}
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	fake := &fakePaystack{}
	_, router := setupHandler(t, fake)

	body, _ := json.Marshal(map[string]interface{}{
		"event": "charge.success",
		"data":  map[string]interface{}{"reference": "BKG-1-1"},
	})
	rec := postWebhook(t, router, body, signWebhook(body, "wrong-secret"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("webhook returned %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestWebhookDuplicateDeliveryIsNoOp(t *testing.T) {
	fake := &fakePaystack{}
	db, router := setupHandler(t, fake)
	user := createUser(t, db, "parent@example.com", models.RoleParent)
	pkg := createPackage(t, db, 250.00, 0)

	booking := models.Booking{
		UserID:       user.ID,
		PackageID:    pkg.ID,
		PartyDate:    time.Now().Add(24 * time.Hour),
		ChildName:    "Ama",
		ContactEmail: user.Email,
		Amount:       pkg.Price,
		Status:       models.BookingAccepted,
		PaymentRef:   "BKG-7-1700000000",
	}
	if err := db.Create(&booking).Error; err != nil {
		t.Fatalf("creating booking: %v", err)
	}

	body, _ := json.Marshal(map[string]interface{}{
		"event": "charge.success",
		"data": map[string]interface{}{
			"reference": booking.PaymentRef,
			"status":    "success",
			"amount":    25000,
		},
	})
	rec := postWebhook(t, router, body, signWebhook(body, "sk_test_fake"))
	if rec.Code != http.StatusOK {
		t.Fatalf("duplicate webhook returned %d, want %d", rec.Code, http.StatusOK)
	}

	var updated models.Booking
	db.First(&updated, booking.ID)
	if updated.Status != models.BookingAccepted {
		t.Fatalf("duplicate webhook moved booking to %s", updated.Status)
	}

	var count int64
	db.Model(&models.Transaction{}).Count(&count)
	if count != 0 {
		t.Fatalf("duplicate webhook recorded %d transactions", count)
	}
}

func TestWebhookActivatesCoursePurchaseOnce(t *testing.T) {
	fake := &fakePaystack{}
	db, router := setupHandler(t, fake)
	user := createUser(t, db, "parent@example.com", models.RoleParent)

	course := models.Course{Title: "Toddler Tumbling", Price: 49.99, Published: true}
	if err := db.Create(&course).Error; err != nil {
		t.Fatalf("creating course: %v", err)
	}
	purchase := models.CoursePurchase{
		UserID:     user.ID,
		CourseID:   course.ID,
		Status:     models.PurchasePending,
		PaymentRef: "CRS-3-1700000000",
		Amount:     course.Price,
	}
	if err := db.Create(&purchase).Error; err != nil {
		t.Fatalf("creating purchase: %v", err)
	}

	body, _ := json.Marshal(map[string]interface{}{
		"event": "charge.success",
		"data": map[string]interface{}{
			"reference": purchase.PaymentRef,
			"status":    "success",
			"amount":    4999,
		},
	})

	rec := postWebhook(t, router, body, signWebhook(body, "sk_test_fake"))
	if rec.Code != http.StatusOK {
		t.Fatalf("webhook returned %d: %s", rec.Code, rec.Body.String())
	}

	var updated models.CoursePurchase
	db.First(&updated, purchase.ID)
	if updated.Status != models.PurchaseActive {
		t.Fatalf("purchase status = %s, want %s", updated.Status, models.PurchaseActive)
	}

	// A replayed delivery must not write a second ledger row.
	rec = postWebhook(t, router, body, signWebhook(body, "sk_test_fake"))
	if rec.Code != http.StatusOK {
		t.Fatalf("duplicate webhook returned %d, want %d", rec.Code, http.StatusOK)
	}

	var count int64
	db.Model(&models.Transaction{}).Where("reference = ?", purchase.PaymentRef).Count(&count)
	if count != 1 {
		t.Fatalf("transactions recorded for one charge = %d, want 1", count)
	}
}

func TestAdminStatusUpdateHonorsStateMachine(t *testing.T) {
	fake := &fakePaystack{}
	db, router := setupHandler(t, fake)
	admin := createUser(t, db, "admin@example.com", models.RoleAdmin)
	user := createUser(t, db, "parent@example.com", models.RoleParent)
	pkg := createPackage(t, db, 100, 0)

	booking := models.Booking{
		UserID:       user.ID,
		PackageID:    pkg.ID,
		PartyDate:    time.Now().Add(24 * time.Hour),
		ChildName:    "Ama",
		ContactEmail: user.Email,
		Amount:       pkg.Price,
		Status:       models.BookingPaid,
	}
	if err := db.Create(&booking).Error; err != nil {
		t.Fatalf("creating booking: %v", err)
	}

	path := fmt.Sprintf("/admin/bookings/%d/status", booking.ID)
	rec := doJSON(t, router, "PATCH", path, authToken(t, admin.ID), map[string]string{
		"status": models.BookingAccepted,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("accept returned %d: %s", rec.Code, rec.Body.String())
	}

	// completed -> anything must be rejected.
	rec = doJSON(t, router, "PATCH", path, authToken(t, admin.ID), map[string]string{
		"status": models.BookingCompleted,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("complete returned %d: %s", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, router, "PATCH", path, authToken(t, admin.ID), map[string]string{
		"status": models.BookingCanceled,
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("transition out of completed returned %d, want %d", rec.Code, http.StatusConflict)
	}

	// Non-admins cannot touch the admin endpoint.
	rec = doJSON(t, router, "PATCH", path, authToken(t, user.ID), map[string]string{
		"status": models.BookingCanceled,
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("parent status update returned %d, want %d", rec.Code, http.StatusForbidden)
	}
}
