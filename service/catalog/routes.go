package catalog

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/OAddae2/Playpark-server/cmd/models"
	"github.com/OAddae2/Playpark-server/cmd/utils"
	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

type CatalogHandler struct {
	db *gorm.DB
}

func NewCatalogHandler(db *gorm.DB) *CatalogHandler {
	return &CatalogHandler{db: db}
}

func (h *CatalogHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/packages", h.GetPackages).Methods("GET")
	router.HandleFunc("/packages/{id}", h.GetPackage).Methods("GET")

	router.HandleFunc("/admin/packages", utils.AdminMiddleware(h.db, h.CreatePackage)).Methods("POST")
	router.HandleFunc("/admin/packages/{id}", utils.AdminMiddleware(h.db, h.UpdatePackage)).Methods("PUT")
	router.HandleFunc("/admin/packages/{id}", utils.AdminMiddleware(h.db, h.ArchivePackage)).Methods("DELETE")
}

// GetPackages lists active party packages.
func (h *CatalogHandler) GetPackages(w http.ResponseWriter, r *http.Request) {
	var packages []models.PartyPackage
	if err := h.db.Where("active = ?", true).Order("price ASC").Find(&packages).Error; err != nil {
		http.Error(w, "Error retrieving packages", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(packages)
}

func (h *CatalogHandler) GetPackage(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	packageID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid package ID", http.StatusBadRequest)
		return
	}

	var pkg models.PartyPackage
	if err := h.db.First(&pkg, packageID).Error; err != nil {
		http.Error(w, "Package not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(pkg)
}

func (h *CatalogHandler) CreatePackage(w http.ResponseWriter, r *http.Request) {
	var pkg models.PartyPackage
	if err := json.NewDecoder(r.Body).Decode(&pkg); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if pkg.Name == "" || pkg.Price <= 0 {
		http.Error(w, "Name and a positive price are required", http.StatusBadRequest)
		return
	}

	pkg.Active = true
	if err := h.db.Create(&pkg).Error; err != nil {
		http.Error(w, "Error creating package", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(pkg)
}

func (h *CatalogHandler) UpdatePackage(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	packageID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid package ID", http.StatusBadRequest)
		return
	}

	var pkg models.PartyPackage
	if err := h.db.First(&pkg, packageID).Error; err != nil {
		http.Error(w, "Package not found", http.StatusNotFound)
		return
	}

	var updateData struct {
		Name        *string  `json:"name"`
		Description *string  `json:"description"`
		Price       *float64 `json:"price"`
		MaxGuests   *int     `json:"max_guests"`
		ImageURL    *string  `json:"image_url"`
		Active      *bool    `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&updateData); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if updateData.Name != nil {
		pkg.Name = *updateData.Name
	}
	if updateData.Description != nil {
		pkg.Description = *updateData.Description
	}
	if updateData.Price != nil {
		pkg.Price = *updateData.Price
	}
	if updateData.MaxGuests != nil {
		pkg.MaxGuests = *updateData.MaxGuests
	}
	if updateData.ImageURL != nil {
		pkg.ImageURL = *updateData.ImageURL
	}
	if updateData.Active != nil {
		pkg.Active = *updateData.Active
	}

	if err := h.db.Save(&pkg).Error; err != nil {
		http.Error(w, "Error updating package", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(pkg)
}

// ArchivePackage deactivates a package; bookings keep referencing it.
func (h *CatalogHandler) ArchivePackage(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	packageID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid package ID", http.StatusBadRequest)
		return
	}

	result := h.db.Model(&models.PartyPackage{}).Where("id = ?", packageID).Update("active", false)
	if result.Error != nil {
		http.Error(w, "Error archiving package", http.StatusInternalServerError)
		return
	}
	if result.RowsAffected == 0 {
		http.Error(w, "Package not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "Package archived successfully",
	})
}
