package course

import (
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

func setup(t *testing.T, paystackURL string) (*gorm.DB, *mux.Router) {
	t.Helper()
	t.Setenv("SECRET_KEY", "test-secret")

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	if err := db.AutoMigrate(
		&models.User{},
		&models.Course{},
		&models.Video{},
		&models.CoursePurchase{},
	); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}

	client := payment.NewClientWith(paystackURL, "sk_test_fake", nil)
	router := mux.NewRouter()
	NewCourseHandlerWith(db, client).RegisterRoutes(router)
	return db, router
}

// paystackStub records what the handler asked the processor for.
type paystackStub struct {
	*httptest.Server
	amount int64
}

func fakePaystack(t *testing.T, fail bool) *paystackStub {
	t.Helper()
	stub := &paystackStub{}
	stub.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail {
			json.NewEncoder(w).Encode(map[string]interface{}{"status": false, "message": "declined"})
			return
		}
		var req struct {
			Reference string `json:"reference"`
			Amount    int64  `json:"amount"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		stub.amount = req.Amount
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": true,
			"data": map[string]interface{}{
				"authorization_url": "https://checkout.example.com/" + req.Reference,
				"reference":         req.Reference,
			},
		})
	}))
	t.Cleanup(stub.Server.Close)
	return stub
}

func createUser(t *testing.T, db *gorm.DB, email, role string) *models.User {
	t.Helper()
	user := models.User{FullName: "Test User", Email: email, PasswordHash: "x", Role: role}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("creating user: %v", err)
	}
	return &user
}

func createCourse(t *testing.T, db *gorm.DB, price float64, published bool) *models.Course {
	t.Helper()
	course := models.Course{Title: "Toddler Tumbling", Price: price, Published: published}
	if err := db.Create(&course).Error; err != nil {
		t.Fatalf("creating course: %v", err)
	}
	return &course
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

func request(t *testing.T, router *mux.Router, method, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCheckoutCreatesPurchaseSession(t *testing.T) {
	db, router := setup(t, fakePaystack(t, false).URL)
	user := createUser(t, db, "parent@example.com", models.RoleParent)
	course := createCourse(t, db, 49.99, true)

	rec := request(t, router, "POST", fmt.Sprintf("/courses/%d/checkout", course.ID), authToken(t, user.ID))
	if rec.Code != http.StatusOK {
		t.Fatalf("checkout returned %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		AuthorizationURL string `json:"authorization_url"`
		Reference        string `json:"reference"`
		PurchaseID       uint   `json:"purchase_id"`
	}
	json.NewDecoder(rec.Body).Decode(&resp)
	if !strings.HasPrefix(resp.Reference, "CRS-") {
		t.Fatalf("reference %q does not carry the course prefix", resp.Reference)
	}

	var purchase models.CoursePurchase
	if err := db.First(&purchase, resp.PurchaseID).Error; err != nil {
		t.Fatalf("loading purchase: %v", err)
	}
	if purchase.Status != models.PurchasePending {
		t.Fatalf("purchase status = %s, want %s", purchase.Status, models.PurchasePending)
	}
	if purchase.PaymentRef != resp.Reference {
		t.Fatalf("purchase ref %q does not match response %q", purchase.PaymentRef, resp.Reference)
	}
}

// The processor charges in minor units; a fractional price must round,
// not truncate, or the charge comes up a cent short of the recorded
// purchase amount.
func TestCheckoutChargesFractionalPriceExactly(t *testing.T) {
	stub := fakePaystack(t, false)
	db, router := setup(t, stub.URL)
	user := createUser(t, db, "parent@example.com", models.RoleParent)
	course := createCourse(t, db, 19.99, true)

	rec := request(t, router, "POST", fmt.Sprintf("/courses/%d/checkout", course.ID), authToken(t, user.ID))
	if rec.Code != http.StatusOK {
		t.Fatalf("checkout returned %d: %s", rec.Code, rec.Body.String())
	}

	if want := int64(1999); stub.amount != want {
		t.Fatalf("initialized amount = %d minor units for price %v, want %d", stub.amount, course.Price, want)
	}
}

func TestCheckoutMarksPurchaseFailedWhenSessionCreationFails(t *testing.T) {
	db, router := setup(t, fakePaystack(t, true).URL)
	user := createUser(t, db, "parent@example.com", models.RoleParent)
	course := createCourse(t, db, 49.99, true)

	rec := request(t, router, "POST", fmt.Sprintf("/courses/%d/checkout", course.ID), authToken(t, user.ID))
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("checkout returned %d, want %d", rec.Code, http.StatusBadGateway)
	}

	var purchase models.CoursePurchase
	if err := db.Where("user_id = ?", user.ID).First(&purchase).Error; err != nil {
		t.Fatalf("loading purchase: %v", err)
	}
	if purchase.Status != models.PurchaseFailed {
		t.Fatalf("purchase status = %s, want %s", purchase.Status, models.PurchaseFailed)
	}
}

func TestCheckoutRejectsUnpublishedCourse(t *testing.T) {
	db, router := setup(t, fakePaystack(t, false).URL)
	user := createUser(t, db, "parent@example.com", models.RoleParent)
	course := createCourse(t, db, 49.99, false)

	rec := request(t, router, "POST", fmt.Sprintf("/courses/%d/checkout", course.ID), authToken(t, user.ID))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("checkout returned %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestVideosRequireActivePurchase(t *testing.T) {
	db, router := setup(t, fakePaystack(t, false).URL)
	buyer := createUser(t, db, "buyer@example.com", models.RoleParent)
	browser := createUser(t, db, "browser@example.com", models.RoleParent)
	admin := createUser(t, db, "admin@example.com", models.RoleAdmin)
	course := createCourse(t, db, 49.99, true)

	if err := db.Create(&models.Video{CourseID: course.ID, Title: "Warmup", URL: "/v/1.mp4"}).Error; err != nil {
		t.Fatalf("creating video: %v", err)
	}
	if err := db.Create(&models.CoursePurchase{
		UserID:     buyer.ID,
		CourseID:   course.ID,
		Status:     models.PurchaseActive,
		PaymentRef: "CRS-1-1700000000",
		Amount:     course.Price,
	}).Error; err != nil {
		t.Fatalf("creating purchase: %v", err)
	}
	// A pending purchase does not unlock anything.
	if err := db.Create(&models.CoursePurchase{
		UserID:     browser.ID,
		CourseID:   course.ID,
		Status:     models.PurchasePending,
		PaymentRef: "CRS-2-1700000000",
		Amount:     course.Price,
	}).Error; err != nil {
		t.Fatalf("creating pending purchase: %v", err)
	}

	path := fmt.Sprintf("/courses/%d/videos", course.ID)

	if rec := request(t, router, "GET", path, authToken(t, browser.ID)); rec.Code != http.StatusForbidden {
		t.Fatalf("pending purchaser got %d, want %d", rec.Code, http.StatusForbidden)
	}
	if rec := request(t, router, "GET", path, authToken(t, buyer.ID)); rec.Code != http.StatusOK {
		t.Fatalf("active purchaser got %d: %s", rec.Code, rec.Body.String())
	}
	if rec := request(t, router, "GET", path, authToken(t, admin.ID)); rec.Code != http.StatusOK {
		t.Fatalf("admin got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestCheckoutRejectsRepurchase(t *testing.T) {
	db, router := setup(t, fakePaystack(t, false).URL)
	user := createUser(t, db, "parent@example.com", models.RoleParent)
	course := createCourse(t, db, 49.99, true)

	if err := db.Create(&models.CoursePurchase{
		UserID:     user.ID,
		CourseID:   course.ID,
		Status:     models.PurchaseActive,
		PaymentRef: "CRS-9-1700000000",
		Amount:     course.Price,
	}).Error; err != nil {
		t.Fatalf("creating purchase: %v", err)
	}

	rec := request(t, router, "POST", fmt.Sprintf("/courses/%d/checkout", course.ID), authToken(t, user.ID))
	if rec.Code != http.StatusConflict {
		t.Fatalf("repurchase returned %d, want %d", rec.Code, http.StatusConflict)
	}
}
