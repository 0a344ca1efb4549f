package routes

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/RamiBarakat/transporter-backend/database"
	"github.com/RamiBarakat/transporter-backend/models"
	"github.com/RamiBarakat/transporter-backend/services"
	ws "github.com/RamiBarakat/transporter-backend/websocket"
)

// RegisterDeliveryRoutes registers the delivery endpoints of the completion
// workflow under /requests/:id
func RegisterDeliveryRoutes(rg *gin.RouterGroup, completion *services.CompletionService, hub *ws.Hub) {
	rg.POST("/:id/delivery", func(c *gin.Context) {
		logDelivery(c, completion, hub)
	})
	rg.POST("/:id/delivery/confirm", func(c *gin.Context) {
		confirmCompletion(c, completion, hub)
	})
	rg.GET("/:id/delivery", getDelivery)
	rg.PUT("/:id/delivery", func(c *gin.Context) {
		updateDelivery(c, completion)
	})
}

// logDelivery handles phase 1 of completion: record the delivery with its
// driver ratings and move the request to processing
func logDelivery(c *gin.Context, completion *services.CompletionService, hub *ws.Hub) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid request id"})
		return
	}

	var input models.DeliveryLog
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	userID := c.GetUint("user_id")

	result, err := completion.LogDelivery(c.Request.Context(), uint(id), &input, userID)
	if err != nil {
		respondWorkflowError(c, err)
		return
	}

	log.Printf("✅ Delivery logged for request %d (delivery=%d, drivers=%d)",
		id, result.Delivery.ID, len(result.Drivers))

	hub.Publish(ws.EventDeliveryLogged, uint(id), gin.H{"delivery_id": result.Delivery.ID})

	c.JSON(http.StatusCreated, gin.H{
		"success":  true,
		"message":  "Delivery logged, awaiting confirmation",
		"delivery": result.Delivery,
		"drivers":  result.Drivers,
	})
}

// confirmCompletion handles phase 2: the client acknowledges the logged
// delivery and the request becomes completed
func confirmCompletion(c *gin.Context, completion *services.CompletionService, hub *ws.Hub) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid request id"})
		return
	}

	if err := completion.ConfirmCompletion(c.Request.Context(), uint(id)); err != nil {
		respondWorkflowError(c, err)
		return
	}

	log.Printf("✅ Completion confirmed for request %d", id)

	hub.Publish(ws.EventDeliveryConfirmed, uint(id), nil)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Request completed",
		"status":  models.RequestStatusCompleted,
	})
}

func getDelivery(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid request id"})
		return
	}

	var delivery models.Delivery
	if err := database.DB.
		Preload("Ratings").
		Preload("Ratings.Driver").
		Preload("LoggedBy").
		Where("request_id = ?", id).
		First(&delivery).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "No delivery logged for this request"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to fetch delivery"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "delivery": delivery})
}

// updateDelivery handles the post-completion edit flow, including the
// client-declared rating diff
func updateDelivery(c *gin.Context, completion *services.CompletionService) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid request id"})
		return
	}

	var input models.DeliveryUpdate
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	delivery, err := completion.UpdateCompletedDelivery(c.Request.Context(), uint(id), &input)
	if err != nil {
		respondWorkflowError(c, err)
		return
	}

	log.Printf("✅ Delivery updated for request %d (delivery=%d)", id, delivery.ID)

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"message":  "Delivery updated",
		"delivery": delivery,
	})
}
