package routes

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/RamiBarakat/transporter-backend/database"
	"github.com/RamiBarakat/transporter-backend/middleware"
	"github.com/RamiBarakat/transporter-backend/models"
	"github.com/RamiBarakat/transporter-backend/services"
	ws "github.com/RamiBarakat/transporter-backend/websocket"
)

// RegisterRequestRoutes registers the transportation request endpoints.
// Deletion is admin-only.
func RegisterRequestRoutes(rg *gin.RouterGroup, completion *services.CompletionService, hub *ws.Hub) {
	rg.POST("/", createRequest)
	rg.GET("/", listRequests)
	rg.GET("/:id", getRequest)
	rg.PUT("/:id", updateRequest)
	rg.DELETE("/:id", middleware.AdminMiddleware(), deleteRequest)

	rg.POST("/:id/cancel", func(c *gin.Context) {
		cancelRequest(c, completion, hub)
	})
}

// nextRequestNumber generates the next REQ-<year>-<seq> number, sequential
// within the year. Runs inside the caller's transaction so two concurrent
// creates cannot pick the same sequence.
func nextRequestNumber(tx *gorm.DB) (string, error) {
	year := time.Now().Year()
	prefix := fmt.Sprintf("REQ-%d-", year)

	var last string
	err := tx.Model(&models.TransportationRequest{}).
		Where("request_number LIKE ?", prefix+"%").
		Order("request_number DESC").
		Limit(1).
		Pluck("request_number", &last).Error
	if err != nil {
		return "", err
	}

	seq := 1
	if last != "" {
		n, err := strconv.Atoi(strings.TrimPrefix(last, prefix))
		if err != nil {
			return "", fmt.Errorf("malformed request number %q: %w", last, err)
		}
		seq = n + 1
	}

	return fmt.Sprintf("%s%03d", prefix, seq), nil
}

func createRequest(c *gin.Context) {
	userID := c.GetUint("user_id")

	var req models.TransportationRequestCreate
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	urgency := req.UrgencyLevel
	if urgency == "" {
		urgency = "medium"
	}

	var request models.TransportationRequest
	err := database.DB.Transaction(func(tx *gorm.DB) error {
		number, err := nextRequestNumber(tx)
		if err != nil {
			return err
		}

		request = models.TransportationRequest{
			RequestNumber: number,
			Origin:        req.Origin,
			Destination:   req.Destination,
			PickupDate:    req.PickupDate,
			TruckCount:    req.TruckCount,
			TruckType:     req.TruckType,
			EstimatedCost: req.EstimatedCost,
			UrgencyLevel:  urgency,
			Status:        models.RequestStatusPlanned,
			Notes:         req.Notes,
			CreatedByID:   userID,
		}
		return tx.Create(&request).Error
	})
	if err != nil {
		log.Printf("❌ Failed to create request: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to create request"})
		return
	}

	log.Printf("✅ Request created: %s (id=%d)", request.RequestNumber, request.ID)

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": "Request created",
		"request": request,
	})
}

func listRequests(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	query := database.DB.Model(&models.TransportationRequest{})
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if urgency := c.Query("urgency_level"); urgency != "" {
		query = query.Where("urgency_level = ?", urgency)
	}
	if search := c.Query("search"); search != "" {
		like := "%" + search + "%"
		query = query.Where("request_number ILIKE ? OR origin ILIKE ? OR destination ILIKE ?", like, like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to count requests"})
		return
	}

	var requests []models.TransportationRequest
	if err := query.
		Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&requests).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to fetch requests"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"requests": requests,
		"pagination": gin.H{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	})
}

func getRequest(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid request id"})
		return
	}

	var request models.TransportationRequest
	if err := database.DB.
		Preload("Delivery").
		Preload("Delivery.Ratings").
		Preload("CreatedBy").
		First(&request, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Request not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to fetch request"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "request": request})
}

func updateRequest(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid request id"})
		return
	}

	var req models.TransportationRequestUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	var request models.TransportationRequest
	if err := database.DB.First(&request, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Request not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to fetch request"})
		return
	}

	// Completed requests are edited through the delivery edit flow only
	if request.Status.IsTerminal() {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": fmt.Sprintf("Cannot edit a %s request", request.Status),
		})
		return
	}

	updates := map[string]interface{}{}
	if req.Origin != nil {
		updates["origin"] = *req.Origin
	}
	if req.Destination != nil {
		updates["destination"] = *req.Destination
	}
	if req.PickupDate != nil {
		updates["pickup_date"] = *req.PickupDate
	}
	if req.TruckCount != nil {
		updates["truck_count"] = *req.TruckCount
	}
	if req.TruckType != nil {
		updates["truck_type"] = *req.TruckType
	}
	if req.EstimatedCost != nil {
		updates["estimated_cost"] = *req.EstimatedCost
	}
	if req.UrgencyLevel != nil {
		updates["urgency_level"] = *req.UrgencyLevel
	}
	if req.Notes != nil {
		updates["notes"] = *req.Notes
	}

	if len(updates) > 0 {
		if err := database.DB.Model(&request).Updates(updates).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to update request"})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Request updated", "request": request})
}

func deleteRequest(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid request id"})
		return
	}

	var request models.TransportationRequest
	if err := database.DB.First(&request, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Request not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to fetch request"})
		return
	}

	if err := database.DB.Delete(&request).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to delete request"})
		return
	}

	log.Printf("🗑️ Request deleted: %s (id=%d)", request.RequestNumber, request.ID)

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Request deleted"})
}

func cancelRequest(c *gin.Context, completion *services.CompletionService, hub *ws.Hub) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid request id"})
		return
	}

	if err := completion.Cancel(c.Request.Context(), uint(id)); err != nil {
		respondWorkflowError(c, err)
		return
	}

	hub.Publish(ws.EventRequestCancelled, uint(id), nil)

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Request cancelled"})
}
