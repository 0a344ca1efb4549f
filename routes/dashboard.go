package routes

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/RamiBarakat/transporter-backend/services"
	ws "github.com/RamiBarakat/transporter-backend/websocket"
)

// RegisterDashboardRoutes registers the KPI and insight endpoints
func RegisterDashboardRoutes(rg *gin.RouterGroup, dashboard *services.DashboardService) {
	rg.GET("/kpi", func(c *gin.Context) {
		getKPIMetrics(c, dashboard)
	})
	rg.GET("/insights", func(c *gin.Context) {
		getInsights(c, dashboard)
	})
}

// RegisterDashboardFeed registers the websocket event feed
func RegisterDashboardFeed(rg *gin.RouterGroup, hub *ws.Hub) {
	rg.GET("/dashboard", func(c *gin.Context) {
		userID := c.GetUint("user_id")
		ws.ServeWebSocket(hub, c.Writer, c.Request, userID)
	})
}

// parsePeriod reads start_date/end_date query params (YYYY-MM-DD), defaulting
// to the last 30 days. End date is inclusive through end of day.
func parsePeriod(c *gin.Context) (time.Time, time.Time, bool) {
	now := time.Now()
	start := now.AddDate(0, 0, -30)
	end := now

	if raw := c.Query("start_date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "start_date must be YYYY-MM-DD"})
			return start, end, false
		}
		start = parsed
	}
	if raw := c.Query("end_date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "end_date must be YYYY-MM-DD"})
			return start, end, false
		}
		end = parsed.Add(24*time.Hour - time.Nanosecond)
	}

	if end.Before(start) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "end_date must not be before start_date"})
		return start, end, false
	}

	return start, end, true
}

func getKPIMetrics(c *gin.Context, dashboard *services.DashboardService) {
	start, end, ok := parsePeriod(c)
	if !ok {
		return
	}

	metrics, err := dashboard.GetKPIMetrics(c.Request.Context(), start, end)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to compute KPI metrics"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "metrics": metrics})
}

func getInsights(c *gin.Context, dashboard *services.DashboardService) {
	start, end, ok := parsePeriod(c)
	if !ok {
		return
	}

	insights, err := dashboard.GetInsights(c.Request.Context(), start, end)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to compute insights"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "insights": insights})
}
