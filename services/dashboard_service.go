package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"gorm.io/gorm"

	"github.com/RamiBarakat/transporter-backend/models"
)

// DashboardService computes date-range KPIs over logged deliveries. Every
// metric degrades to zero when the range has no data; the service never
// returns NaN, Inf, or an error for lack of rows.
type DashboardService struct {
	db        *gorm.DB
	annotator Annotator
}

// NewDashboardService creates a dashboard service. The annotator may be a
// NoopAnnotator when no generative backend is configured.
func NewDashboardService(db *gorm.DB, annotator Annotator) *DashboardService {
	return &DashboardService{db: db, annotator: annotator}
}

// KPIMetric is one dashboard figure with its trend against the preceding
// equal-length window (percent change; 0 when the baseline is zero or absent)
type KPIMetric struct {
	Value float64 `json:"value"`
	Trend float64 `json:"trend"`
}

// KPIMetrics is the full dashboard payload for one date range
type KPIMetrics struct {
	OnTimeRate        KPIMetric `json:"on_time_rate"`        // % deliveries picked up on or before the planned date
	CostVariance      KPIMetric `json:"cost_variance"`       // mean % deviation of invoice vs estimate
	FleetUtilization  KPIMetric `json:"fleet_utilization"`   // % of active drivers rated in the window
	DriverPerformance KPIMetric `json:"driver_performance"`  // mean overall rating
	TotalDeliveries   int64     `json:"total_deliveries"`
	PeriodStart       time.Time `json:"period_start"`
	PeriodEnd         time.Time `json:"period_end"`
}

// windowStats holds the raw figures for one window, before trend computation
type windowStats struct {
	onTimeRate        float64
	costVariance      float64
	fleetUtilization  float64
	driverPerformance float64
	totalDeliveries   int64
}

// GetKPIMetrics computes the KPIs for [start, end] and their trends against
// the preceding window of equal length
func (s *DashboardService) GetKPIMetrics(ctx context.Context, start, end time.Time) (*KPIMetrics, error) {
	current, err := s.computeWindow(ctx, start, end, true)
	if err != nil {
		return nil, err
	}

	// The preceding window ends exclusively at start so a delivery exactly on
	// the boundary is counted once
	span := end.Sub(start)
	previous, err := s.computeWindow(ctx, start.Add(-span), start, false)
	if err != nil {
		return nil, err
	}

	return &KPIMetrics{
		OnTimeRate:        KPIMetric{Value: current.onTimeRate, Trend: trend(current.onTimeRate, previous.onTimeRate)},
		CostVariance:      KPIMetric{Value: current.costVariance, Trend: trend(current.costVariance, previous.costVariance)},
		FleetUtilization:  KPIMetric{Value: current.fleetUtilization, Trend: trend(current.fleetUtilization, previous.fleetUtilization)},
		DriverPerformance: KPIMetric{Value: current.driverPerformance, Trend: trend(current.driverPerformance, previous.driverPerformance)},
		TotalDeliveries:   current.totalDeliveries,
		PeriodStart:       start,
		PeriodEnd:         end,
	}, nil
}

// computeWindow runs the aggregate queries for one window. Deliveries are
// scoped to processing/completed requests by actual pickup date.
func (s *DashboardService) computeWindow(ctx context.Context, start, end time.Time, endInclusive bool) (windowStats, error) {
	stats := windowStats{}
	db := s.db.WithContext(ctx)

	inWindow := func(q *gorm.DB) *gorm.DB {
		if endInclusive {
			return q.Where("deliveries.actual_pickup_date BETWEEN ? AND ?", start, end)
		}
		return q.Where("deliveries.actual_pickup_date >= ? AND deliveries.actual_pickup_date < ?", start, end)
	}

	deliveries := func() *gorm.DB {
		return inWindow(db.Model(&models.Delivery{}).
			Joins("JOIN transportation_requests ON transportation_requests.id = deliveries.request_id AND transportation_requests.deleted_at IS NULL").
			Where("transportation_requests.status IN ?", []models.TransportationRequestStatus{
				models.RequestStatusProcessing, models.RequestStatusCompleted,
			}))
	}

	if err := deliveries().Count(&stats.totalDeliveries).Error; err != nil {
		return stats, err
	}
	if stats.totalDeliveries == 0 {
		// Fleet utilization is still meaningful with zero deliveries (it is 0),
		// and the remaining metrics degrade to zero as well
		return stats, nil
	}

	// On-time rate: actual pickup on or before the planned date
	var onTime int64
	if err := deliveries().
		Where("deliveries.actual_pickup_date <= transportation_requests.pickup_date").
		Count(&onTime).Error; err != nil {
		return stats, err
	}
	stats.onTimeRate = round1(float64(onTime) / float64(stats.totalDeliveries) * 100)

	// Cost variance: mean percent deviation of invoice vs estimate, only over
	// rows where both figures are positive
	var variance *float64
	if err := deliveries().
		Select("AVG((deliveries.invoice_amount - transportation_requests.estimated_cost) / transportation_requests.estimated_cost * 100)").
		Where("deliveries.invoice_amount > 0 AND transportation_requests.estimated_cost > 0").
		Scan(&variance).Error; err != nil {
		return stats, err
	}
	if variance != nil {
		stats.costVariance = round1(*variance)
	}

	// Fleet utilization: distinct drivers rated in the window over all
	// non-archived drivers
	var ratedDrivers int64
	if err := inWindow(db.Model(&models.DriverRating{}).
		Joins("JOIN deliveries ON deliveries.id = driver_ratings.delivery_id AND deliveries.deleted_at IS NULL")).
		Distinct("driver_ratings.driver_id").
		Count(&ratedDrivers).Error; err != nil {
		return stats, err
	}
	var activeDrivers int64
	if err := db.Model(&models.Driver{}).Where("is_archived = ?", false).Count(&activeDrivers).Error; err != nil {
		return stats, err
	}
	if activeDrivers > 0 {
		stats.fleetUtilization = round1(float64(ratedDrivers) / float64(activeDrivers) * 100)
	}

	// Driver performance: mean overall rating across the window's ratings
	var performance *float64
	if err := inWindow(db.Model(&models.DriverRating{}).
		Select("AVG(CAST(driver_ratings.overall AS numeric))").
		Joins("JOIN deliveries ON deliveries.id = driver_ratings.delivery_id AND deliveries.deleted_at IS NULL")).
		Scan(&performance).Error; err != nil {
		return stats, err
	}
	if performance != nil {
		stats.driverPerformance = round1(*performance)
	}

	return stats, nil
}

// trend returns the percent change from previous to current, 0 when the
// baseline is zero (no meaningful comparison)
func trend(current, previous float64) float64 {
	if previous == 0 {
		return 0
	}
	return round1((current - previous) / math.Abs(previous) * 100)
}

func round1(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Round(v*10) / 10
}

// Insight is one dashboard observation, either rule-derived or rewritten by
// the annotator
type Insight struct {
	ID             string  `json:"id"`
	Title          string  `json:"title"`
	Description    string  `json:"description"`
	Severity       string  `json:"severity"` // high, medium, low
	Recommendation string  `json:"recommendation"`
	Metric         float64 `json:"metric"`
}

// GetInsights derives rule-based insights from the window's KPIs and passes
// them through the annotator. The annotator is best-effort: its contract
// guarantees the rule-based insights come back unchanged on any failure.
func (s *DashboardService) GetInsights(ctx context.Context, start, end time.Time) ([]Insight, error) {
	metrics, err := s.GetKPIMetrics(ctx, start, end)
	if err != nil {
		return nil, err
	}

	insights := buildRuleBasedInsights(metrics)
	return s.annotator.Annotate(ctx, insights, start, end)
}

// buildRuleBasedInsights derives deterministic observations from the KPIs.
// These are both the annotator's input and its fallback output.
func buildRuleBasedInsights(m *KPIMetrics) []Insight {
	var insights []Insight

	if m.TotalDeliveries == 0 {
		return []Insight{{
			ID:             "no-activity",
			Title:          "No deliveries in period",
			Description:    "No deliveries were logged in the selected period.",
			Severity:       "low",
			Recommendation: "Widen the date range or check that coordinators are logging deliveries.",
		}}
	}

	switch {
	case m.OnTimeRate.Value < 70:
		insights = append(insights, Insight{
			ID:             "on-time-low",
			Title:          "On-time rate below target",
			Description:    fmt.Sprintf("Only %.1f%% of deliveries were picked up on or before the planned date.", m.OnTimeRate.Value),
			Severity:       "high",
			Recommendation: "Review pickup scheduling with the most delayed transporters.",
			Metric:         m.OnTimeRate.Value,
		})
	case m.OnTimeRate.Value >= 90:
		insights = append(insights, Insight{
			ID:             "on-time-strong",
			Title:          "Strong on-time performance",
			Description:    fmt.Sprintf("%.1f%% of deliveries were picked up on time.", m.OnTimeRate.Value),
			Severity:       "low",
			Recommendation: "Keep current scheduling practices.",
			Metric:         m.OnTimeRate.Value,
		})
	}

	if m.CostVariance.Value > 10 {
		insights = append(insights, Insight{
			ID:             "cost-overrun",
			Title:          "Invoices exceeding estimates",
			Description:    fmt.Sprintf("Invoiced amounts ran %.1f%% above estimates on average.", m.CostVariance.Value),
			Severity:       "high",
			Recommendation: "Recalibrate cost estimation or renegotiate transporter rates.",
			Metric:         m.CostVariance.Value,
		})
	} else if m.CostVariance.Value < -10 {
		insights = append(insights, Insight{
			ID:             "cost-overestimate",
			Title:          "Estimates running high",
			Description:    fmt.Sprintf("Invoiced amounts came in %.1f%% below estimates on average.", -m.CostVariance.Value),
			Severity:       "medium",
			Recommendation: "Lower cost estimates to improve planning accuracy.",
			Metric:         m.CostVariance.Value,
		})
	}

	if m.FleetUtilization.Value > 0 && m.FleetUtilization.Value < 50 {
		insights = append(insights, Insight{
			ID:             "fleet-underused",
			Title:          "Low fleet utilization",
			Description:    fmt.Sprintf("Only %.1f%% of active drivers performed deliveries in this period.", m.FleetUtilization.Value),
			Severity:       "medium",
			Recommendation: "Spread assignments across more of the driver pool or archive inactive drivers.",
			Metric:         m.FleetUtilization.Value,
		})
	}

	if m.DriverPerformance.Value > 0 && m.DriverPerformance.Value < 3.5 {
		insights = append(insights, Insight{
			ID:             "driver-performance-low",
			Title:          "Driver ratings trending low",
			Description:    fmt.Sprintf("Average overall driver rating is %.1f out of 5.", m.DriverPerformance.Value),
			Severity:       "high",
			Recommendation: "Review the lowest-rated drivers and consider coaching or replacement.",
			Metric:         m.DriverPerformance.Value,
		})
	}

	if len(insights) == 0 {
		insights = append(insights, Insight{
			ID:             "steady-state",
			Title:          "Operations within normal ranges",
			Description:    fmt.Sprintf("%d deliveries completed with no metric outside its target band.", m.TotalDeliveries),
			Severity:       "low",
			Recommendation: "No action needed.",
		})
	}

	return insights
}
