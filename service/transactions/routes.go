package transactions

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/OAddae2/Playpark-server/cmd/models"
	"github.com/OAddae2/Playpark-server/cmd/utils"
	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

// TransactionFilter represents all possible filters for transactions
type TransactionFilter struct {
	UserID    uint
	Method    string
	Purpose   string
	MinAmount float64
	MaxAmount float64
	StartDate time.Time
	EndDate   time.Time
}

// PaginatedResponse is the standard paginated API response structure
type PaginatedResponse struct {
	Data       interface{}    `json:"data"`
	Pagination PaginationMeta `json:"pagination"`
	Error      string         `json:"error,omitempty"`
}

// PaginationMeta contains pagination metadata
type PaginationMeta struct {
	CurrentPage int   `json:"current_page"`
	PerPage     int   `json:"per_page"`
	TotalItems  int64 `json:"total_items"`
	TotalPages  int   `json:"total_pages"`
	HasPrevious bool  `json:"has_previous"`
	HasNext     bool  `json:"has_next"`
}

type TransactionHandler struct {
	db *gorm.DB
}

func NewTransactionHandler(db *gorm.DB) *TransactionHandler {
	return &TransactionHandler{db: db}
}

func (h *TransactionHandler) RegisterRoutes(router *mux.Router) {
	transactionRouter := router.PathPrefix("/admin/transactions").Subrouter()

	transactionRouter.HandleFunc("", utils.AdminMiddleware(h.db, h.GetTransactions)).Methods("GET")
}

// ParsePaginationParams extracts and validates pagination parameters
func ParsePaginationParams(r *http.Request) (int, int, error) {
	query := r.URL.Query()

	page := 1
	if query.Get("page") != "" {
		parsedPage, err := strconv.Atoi(query.Get("page"))
		if err != nil || parsedPage < 1 {
			return 0, 0, err
		}
		page = parsedPage
	}

	perPage := 10
	if query.Get("per_page") != "" {
		parsedPerPage, err := strconv.Atoi(query.Get("per_page"))
		if err != nil || parsedPerPage < 1 {
			return 0, 0, err
		}
		if parsedPerPage > 100 {
			parsedPerPage = 100
		}
		perPage = parsedPerPage
	}

	return page, perPage, nil
}

// GetTransactions lists recorded payment transactions with filters, for
// the admin back office.
func (h *TransactionHandler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	page, perPage, err := ParsePaginationParams(r)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(PaginatedResponse{Error: "Invalid pagination parameters"})
		return
	}

	query := h.db.Model(&models.Transaction{}).Preload("User")
	queryParams := r.URL.Query()

	if userIDStr := queryParams.Get("user_id"); userIDStr != "" {
		if userID, err := strconv.ParseUint(userIDStr, 10, 32); err == nil {
			query = query.Where("user_id = ?", uint(userID))
		}
	}
	if method := queryParams.Get("method"); method != "" {
		query = query.Where("method = ?", method)
	}
	if purpose := queryParams.Get("purpose"); purpose != "" {
		query = query.Where("purpose = ?", purpose)
	}
	if minStr := queryParams.Get("min_amount"); minStr != "" {
		if min, err := strconv.ParseFloat(minStr, 64); err == nil {
			query = query.Where("amount >= ?", min)
		}
	}
	if maxStr := queryParams.Get("max_amount"); maxStr != "" {
		if max, err := strconv.ParseFloat(maxStr, 64); err == nil {
			query = query.Where("amount <= ?", max)
		}
	}
	if startStr := queryParams.Get("start_date"); startStr != "" {
		if start, err := time.Parse("2006-01-02", startStr); err == nil {
			query = query.Where("created_at >= ?", start)
		}
	}
	if endStr := queryParams.Get("end_date"); endStr != "" {
		if end, err := time.Parse("2006-01-02", endStr); err == nil {
			query = query.Where("created_at < ?", end.AddDate(0, 0, 1))
		}
	}

	var total int64
	query.Count(&total)

	var txns []models.Transaction
	if err := query.Offset((page - 1) * perPage).Limit(perPage).
		Order("created_at DESC").Find(&txns).Error; err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(PaginatedResponse{Error: "Error retrieving transactions"})
		return
	}

	totalPages := int(math.Ceil(float64(total) / float64(perPage)))

	json.NewEncoder(w).Encode(PaginatedResponse{
		Data: txns,
		Pagination: PaginationMeta{
			CurrentPage: page,
			PerPage:     perPage,
			TotalItems:  total,
			TotalPages:  totalPages,
			HasPrevious: page > 1,
			HasNext:     page < totalPages,
		},
	})
}
