package api

import (
	"log"
	"net/http"

	"github.com/OAddae2/Playpark-server/service/booking"
	"github.com/OAddae2/Playpark-server/service/catalog"
	"github.com/OAddae2/Playpark-server/service/course"
	"github.com/OAddae2/Playpark-server/service/feed"
	"github.com/OAddae2/Playpark-server/service/notification"
	"github.com/OAddae2/Playpark-server/service/transactions"
	"github.com/OAddae2/Playpark-server/service/user"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

type APIServer struct {
	address string
	db      *gorm.DB
}

func NewApiServer(address string, db *gorm.DB) *APIServer {
	return &APIServer{
		address: address,
		db:      db,
	}
}

func (s *APIServer) Run() error {
	router := mux.NewRouter()
	subrouter := router.PathPrefix("/api/v1").Subrouter()

	userHandler := user.NewHandler(s.db)
	userHandler.RegisterRoutes(subrouter)

	feedHandler := feed.NewPostHandler(s.db)
	feedHandler.RegisterRoutes(subrouter)

	catalogHandler := catalog.NewCatalogHandler(s.db)
	catalogHandler.RegisterRoutes(subrouter)

	bookingHandler := booking.NewBookingHandler(s.db)
	bookingHandler.RegisterRoutes(subrouter)

	courseHandler := course.NewCourseHandler(s.db)
	courseHandler.RegisterRoutes(subrouter)

	notificationHandler := notification.NewNotificationHandler(s.db)
	notificationHandler.RegisterRoutes(subrouter)

	transactionHandler := transactions.NewTransactionHandler(s.db)
	transactionHandler.RegisterRoutes(subrouter)

	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)

	log.Println("Server running at", s.address)
	return http.ListenAndServe(s.address, cors(router))
}
