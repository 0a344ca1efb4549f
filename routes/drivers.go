package routes

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/RamiBarakat/transporter-backend/database"
	"github.com/RamiBarakat/transporter-backend/middleware"
	"github.com/RamiBarakat/transporter-backend/models"
	"github.com/RamiBarakat/transporter-backend/services"
)

// RegisterDriverRoutes registers the driver endpoints. Deletion is
// admin-only; everything else is open to any coordinator.
func RegisterDriverRoutes(rg *gin.RouterGroup) {
	rg.POST("/", createDriver)
	rg.GET("/", listDrivers)
	rg.GET("/:id", getDriver)
	rg.PUT("/:id", updateDriver)
	rg.DELETE("/:id", middleware.AdminMiddleware(), deleteDriver)
	rg.POST("/:id/archive", archiveDriver)
	rg.GET("/:id/ratings", getDriverRatings)
	rg.GET("/:id/summary", getDriverSummary)
}

func createDriver(c *gin.Context) {
	var req models.DriverCreate
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	if !req.VariantFieldsValid() {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "Missing required fields for driver type " + string(req.DriverType),
		})
		return
	}

	driver := req.ToDriver()
	if err := database.DB.Create(&driver).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to create driver"})
		return
	}

	log.Printf("✅ Driver created: %s (%s, id=%d)", driver.Name, driver.DriverType, driver.ID)

	c.JSON(http.StatusCreated, gin.H{"success": true, "message": "Driver created", "driver": driver})
}

func listDrivers(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	query := database.DB.Model(&models.Driver{})
	if driverType := c.Query("driver_type"); driverType != "" {
		query = query.Where("driver_type = ?", driverType)
	}
	if c.Query("include_archived") != "true" {
		query = query.Where("is_archived = ?", false)
	}
	if search := c.Query("search"); search != "" {
		query = query.Where("name ILIKE ?", "%"+search+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to count drivers"})
		return
	}

	var drivers []models.Driver
	if err := query.
		Order("name ASC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&drivers).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to fetch drivers"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"drivers": drivers,
		"pagination": gin.H{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	})
}

func getDriver(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid driver id"})
		return
	}

	var driver models.Driver
	if err := database.DB.First(&driver, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Driver not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to fetch driver"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "driver": driver})
}

func updateDriver(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid driver id"})
		return
	}

	var req models.DriverUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	var driver models.Driver
	if err := database.DB.First(&driver, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Driver not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to fetch driver"})
		return
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	// Only the fields matching the driver's variant are editable
	switch driver.DriverType {
	case models.DriverTypeTransporter:
		if req.CompanyName != nil {
			updates["company_name"] = *req.CompanyName
		}
		if req.PhoneNumber != nil {
			updates["phone_number"] = *req.PhoneNumber
		}
		if req.LicenseNumber != nil {
			updates["license_number"] = *req.LicenseNumber
		}
	case models.DriverTypeInHouse:
		if req.EmployeeNumber != nil {
			updates["employee_number"] = *req.EmployeeNumber
		}
		if req.Department != nil {
			updates["department"] = *req.Department
		}
		if req.HireDate != nil {
			updates["hire_date"] = *req.HireDate
		}
	}

	if len(updates) > 0 {
		if err := database.DB.Model(&driver).Updates(updates).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to update driver"})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Driver updated", "driver": driver})
}

// deleteDriver soft-deletes a driver, but only when no ratings reference it;
// rated drivers must be archived instead to keep rating history intact
func deleteDriver(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid driver id"})
		return
	}

	var driver models.Driver
	if err := database.DB.First(&driver, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Driver not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to fetch driver"})
		return
	}

	var ratingCount int64
	if err := database.DB.Model(&models.DriverRating{}).
		Where("driver_id = ?", driver.ID).
		Count(&ratingCount).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to check driver ratings"})
		return
	}
	if ratingCount > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "Driver has delivery ratings and cannot be deleted; archive instead",
		})
		return
	}

	if err := database.DB.Delete(&driver).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to delete driver"})
		return
	}

	log.Printf("🗑️ Driver deleted: %s (id=%d)", driver.Name, driver.ID)

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Driver deleted"})
}

func archiveDriver(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid driver id"})
		return
	}

	result := database.DB.Model(&models.Driver{}).Where("id = ?", id).Update("is_archived", true)
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to archive driver"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Driver not found"})
		return
	}

	log.Printf("📦 Driver archived: id=%d", id)

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Driver archived"})
}

func getDriverRatings(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid driver id"})
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	var total int64
	if err := database.DB.Model(&models.DriverRating{}).
		Where("driver_id = ?", id).
		Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to count ratings"})
		return
	}

	var ratings []models.DriverRating
	if err := database.DB.
		Preload("Delivery").
		Where("driver_id = ?", id).
		Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&ratings).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to fetch ratings"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"ratings": ratings,
		"pagination": gin.H{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	})
}

// getDriverSummary returns the per-dimension rating averages; a driver with
// no ratings gets the all-zero summary, not an error
func getDriverSummary(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid driver id"})
		return
	}

	var driver models.Driver
	if err := database.DB.First(&driver, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Driver not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to fetch driver"})
		return
	}

	var ratings []models.DriverRating
	if err := database.DB.
		Where("driver_id = ?", driver.ID).
		Find(&ratings).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to fetch ratings"})
		return
	}

	summary := services.CalculateSummary(ratings)
	summary.DriverID = driver.ID

	c.JSON(http.StatusOK, gin.H{"success": true, "summary": summary})
}
