package routes

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/RamiBarakat/transporter-backend/services"
)

// respondWorkflowError maps the completion workflow's error taxonomy to HTTP
// responses. Anything outside the taxonomy is a 500 with a generic message;
// store internals are never echoed to clients.
func respondWorkflowError(c *gin.Context, err error) {
	switch services.KindOf(err) {
	case services.KindNotFound:
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": err.Error()})
	case services.KindInvalidState, services.KindAlreadyLogged,
		services.KindDriverNotFound, services.KindValidation:
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
	case services.KindContention:
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": err.Error(),
			"detail":  "The operation was retried and still could not acquire the required locks",
		})
	default:
		log.Printf("❌ Unhandled workflow error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Internal server error"})
	}
}
