package services

import (
	"math"
	"time"

	"gorm.io/gorm"

	"github.com/RamiBarakat/transporter-backend/models"
)

// CalculateSummary computes per-dimension averages over a set of ratings.
// Pure function: no I/O, and the result is invariant under reordering of the
// input because each dimension is summed in integers before the single
// division. Optional dimensions (0 = not scored) average only over the
// ratings that scored them. An empty input yields the all-zero summary.
func CalculateSummary(ratings []models.DriverRating) models.DriverRatingSummary {
	summary := models.DriverRatingSummary{TotalRatings: len(ratings)}
	if len(ratings) == 0 {
		return summary
	}

	var punctuality, professionalism, overall int
	var quality, qualityN, communication, communicationN, safety, safetyN int
	for _, r := range ratings {
		punctuality += r.Punctuality
		professionalism += r.Professionalism
		overall += r.Overall
		if r.DeliveryQuality > 0 {
			quality += r.DeliveryQuality
			qualityN++
		}
		if r.Communication > 0 {
			communication += r.Communication
			communicationN++
		}
		if r.Safety > 0 {
			safety += r.Safety
			safetyN++
		}
	}

	summary.AveragePunctuality = roundAverage(punctuality, len(ratings))
	summary.AverageProfessionalism = roundAverage(professionalism, len(ratings))
	summary.AverageOverall = roundAverage(overall, len(ratings))
	summary.AverageDeliveryQuality = roundAverage(quality, qualityN)
	summary.AverageCommunication = roundAverage(communication, communicationN)
	summary.AverageSafety = roundAverage(safety, safetyN)
	return summary
}

// roundAverage returns sum/count rounded to 1 decimal, 0 for an empty count
func roundAverage(sum, count int) float64 {
	if count == 0 {
		return 0
	}
	return math.Round(float64(sum)/float64(count)*10) / 10
}

// CalculateOverallRating computes the mean overall score across all of a
// driver's ratings, rounded to 1 decimal, 0 when the driver has none. This
// is the value persisted onto Driver.OverallRating.
func CalculateOverallRating(db *gorm.DB, driverID uint) (float64, error) {
	var overalls []int
	if err := db.Model(&models.DriverRating{}).
		Where("driver_id = ?", driverID).
		Order("id").
		Pluck("overall", &overalls).Error; err != nil {
		return 0, err
	}

	sum := 0
	for _, v := range overalls {
		sum += v
	}
	return roundAverage(sum, len(overalls)), nil
}

// RefreshDriverAggregates recomputes a driver's derived fields from its
// ratings and deliveries: overall rating, delivery count and last delivery.
// Called best-effort after the completion transaction commits and by the
// periodic reconciliation job.
func RefreshDriverAggregates(db *gorm.DB, driverID uint) error {
	overall, err := CalculateOverallRating(db, driverID)
	if err != nil {
		return err
	}

	var total int64
	if err := db.Model(&models.DriverRating{}).
		Where("driver_id = ?", driverID).
		Count(&total).Error; err != nil {
		return err
	}

	// The max is taken in Go rather than with SQL MAX(): aggregates lose the
	// column's time affinity on some backends and come back as strings
	var pickupDates []time.Time
	if err := db.Model(&models.DriverRating{}).
		Joins("JOIN deliveries ON deliveries.id = driver_ratings.delivery_id AND deliveries.deleted_at IS NULL").
		Where("driver_ratings.driver_id = ?", driverID).
		Pluck("deliveries.actual_pickup_date", &pickupDates).Error; err != nil {
		return err
	}
	var lastDelivery *time.Time
	for i := range pickupDates {
		if lastDelivery == nil || pickupDates[i].After(*lastDelivery) {
			d := pickupDates[i]
			lastDelivery = &d
		}
	}

	return db.Model(&models.Driver{}).Where("id = ?", driverID).Updates(map[string]interface{}{
		"overall_rating":   overall,
		"total_deliveries": total,
		"last_delivery":    lastDelivery,
		"updated_at":       time.Now(),
	}).Error
}
