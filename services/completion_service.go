package services

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/RamiBarakat/transporter-backend/models"
)

const (
	lockRetryAttempts  = 3
	lockRetryBaseDelay = 100 * time.Millisecond
)

// CompletionService orchestrates the two-phase delivery completion workflow:
// LogDelivery records the delivery and moves the request to processing
// (phase 1), ConfirmCompletion marks it completed once the client has
// acknowledged the result (phase 2). Splitting the commit this way lets a
// client that lost the phase-1 response simply re-log: while the request is
// processing, LogDelivery replaces the prior unconfirmed attempt in place.
type CompletionService struct {
	db *gorm.DB
}

// NewCompletionService creates a completion service over the given database
func NewCompletionService(db *gorm.DB) *CompletionService {
	return &CompletionService{db: db}
}

// CompletionResult is returned by LogDelivery: the created delivery plus the
// resolved driver rows, in assignment order
type CompletionResult struct {
	Delivery *models.Delivery `json:"delivery"`
	Drivers  []models.Driver  `json:"drivers"`
}

// LogDelivery executes phase 1 of the completion workflow. Within one
// transaction holding a row lock on the request: an existing delivery is
// destroyed together with its ratings when the request is already processing
// (the retry path — losing the unconfirmed attempt is intentional), the new
// delivery and its driver ratings are created, drivers are resolved by id
// (row-locked) or created inline, and the request moves to processing.
// Driver aggregates are refreshed after commit, best-effort.
func (s *CompletionService) LogDelivery(ctx context.Context, requestID uint, input *models.DeliveryLog, loggedByID uint) (*CompletionResult, error) {
	var result *CompletionResult

	err := s.withLockRetry("log delivery", func() error {
		result = nil
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var request models.TransportationRequest
			if err := lockForUpdate(tx).First(&request, requestID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return notFoundError("transportation request", requestID)
				}
				return err
			}

			if request.Status != models.RequestStatusPlanned && request.Status != models.RequestStatusProcessing {
				return invalidStateError("log delivery", string(request.Status))
			}

			var existing models.Delivery
			err := tx.Where("request_id = ?", request.ID).First(&existing).Error
			switch {
			case err == nil:
				if request.Status == models.RequestStatusPlanned {
					// Unreachable through the status guard, checked defensively
					return &WorkflowError{Kind: KindAlreadyLogged, Message: "a delivery is already logged for this request"}
				}
				// Retry path: drop the unconfirmed attempt and its ratings
				if err := tx.Unscoped().Where("delivery_id = ?", existing.ID).Delete(&models.DriverRating{}).Error; err != nil {
					return err
				}
				if err := tx.Unscoped().Delete(&existing).Error; err != nil {
					return err
				}
			case errors.Is(err, gorm.ErrRecordNotFound):
				// First attempt
			default:
				return err
			}

			delivery := models.Delivery{
				RequestID:        request.ID,
				ActualPickupDate: input.ActualPickupDate,
				ActualTruckCount: input.ActualTruckCount,
				InvoiceAmount:    input.InvoiceAmount,
				Notes:            input.Notes,
				LoggedByID:       loggedByID,
				LoggedAt:         time.Now(),
			}
			if err := tx.Create(&delivery).Error; err != nil {
				return err
			}

			var drivers []models.Driver
			for _, assignment := range input.Drivers {
				driver, err := resolveDriver(tx, assignment)
				if err != nil {
					return err
				}

				rating := ratingFromScores(assignment.Rating)
				rating.DeliveryID = delivery.ID
				rating.DriverID = driver.ID
				if err := tx.Create(&rating).Error; err != nil {
					return err
				}
				drivers = append(drivers, driver)
			}

			if err := tx.Model(&models.TransportationRequest{}).Where("id = ?", request.ID).
				Update("status", models.RequestStatusProcessing).Error; err != nil {
				return err
			}

			result = &CompletionResult{Delivery: &delivery, Drivers: drivers}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	// Outside the transaction: committed delivery data must never be unwound
	// by a failing aggregate refresh
	s.refreshDriverStats(result.Drivers)

	return result, nil
}

// ConfirmCompletion executes phase 2: the client acknowledges the logged
// delivery and the request becomes completed. Only valid from processing.
func (s *CompletionService) ConfirmCompletion(ctx context.Context, requestID uint) error {
	return s.withLockRetry("confirm completion", func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var request models.TransportationRequest
			if err := lockForUpdate(tx).First(&request, requestID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return notFoundError("transportation request", requestID)
				}
				return err
			}

			if request.Status != models.RequestStatusProcessing {
				return invalidStateError("confirm completion", string(request.Status))
			}

			return tx.Model(&models.TransportationRequest{}).Where("id = ?", request.ID).
				Update("status", models.RequestStatusCompleted).Error
		})
	})
}

// Cancel moves a planned or processing request to cancelled. An existing
// unconfirmed delivery is kept for audit; completed requests cannot be
// cancelled.
func (s *CompletionService) Cancel(ctx context.Context, requestID uint) error {
	return s.withLockRetry("cancel request", func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var request models.TransportationRequest
			if err := lockForUpdate(tx).First(&request, requestID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return notFoundError("transportation request", requestID)
				}
				return err
			}

			if !request.Status.CanTransitionTo(models.RequestStatusCancelled) {
				return invalidStateError("cancel", string(request.Status))
			}

			return tx.Model(&models.TransportationRequest{}).Where("id = ?", request.ID).
				Update("status", models.RequestStatusCancelled).Error
		})
	})
}

// UpdateCompletedDelivery amends a completed request's delivery and applies
// the client-declared rating diff: entries carrying a rating id update that
// rating (which must belong to this delivery), entries without an id create
// a new rating, and persisted ratings missing from a non-nil slice are
// deleted. Aggregates for every touched driver are refreshed after commit.
func (s *CompletionService) UpdateCompletedDelivery(ctx context.Context, requestID uint, input *models.DeliveryUpdate) (*models.Delivery, error) {
	var delivery *models.Delivery
	touched := map[uint]bool{}

	err := s.withLockRetry("update delivery", func() error {
		delivery = nil
		touched = map[uint]bool{}
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var request models.TransportationRequest
			if err := lockForUpdate(tx).First(&request, requestID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return notFoundError("transportation request", requestID)
				}
				return err
			}

			if request.Status != models.RequestStatusCompleted {
				return invalidStateError("edit delivery", string(request.Status))
			}

			var current models.Delivery
			if err := tx.Where("request_id = ?", request.ID).First(&current).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return notFoundError("delivery for request", requestID)
				}
				return err
			}

			updates := map[string]interface{}{}
			if input.ActualPickupDate != nil {
				updates["actual_pickup_date"] = *input.ActualPickupDate
			}
			if input.ActualTruckCount != nil {
				updates["actual_truck_count"] = *input.ActualTruckCount
			}
			if input.InvoiceAmount != nil {
				updates["invoice_amount"] = *input.InvoiceAmount
			}
			if input.Notes != nil {
				updates["notes"] = *input.Notes
			}
			if len(updates) > 0 {
				if err := tx.Model(&current).Updates(updates).Error; err != nil {
					return err
				}
			}

			if input.Ratings != nil {
				if err := applyRatingDiff(tx, &current, input.Ratings, touched); err != nil {
					return err
				}
			}

			delivery = &current
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	ids := make([]models.Driver, 0, len(touched))
	for id := range touched {
		ids = append(ids, models.Driver{ID: id})
	}
	s.refreshDriverStats(ids)

	return delivery, nil
}

// applyRatingDiff reconciles the delivery's persisted ratings with the
// client-declared slice. Referential integrity is enforced server-side: a
// rating id that does not belong to this delivery is rejected rather than
// trusted.
func applyRatingDiff(tx *gorm.DB, delivery *models.Delivery, edits []models.RatingEdit, touched map[uint]bool) error {
	var existing []models.DriverRating
	if err := tx.Where("delivery_id = ?", delivery.ID).Find(&existing).Error; err != nil {
		return err
	}
	byID := make(map[uint]models.DriverRating, len(existing))
	for _, r := range existing {
		byID[r.ID] = r
	}

	kept := map[uint]bool{}
	for _, edit := range edits {
		if edit.ID != nil {
			rating, ok := byID[*edit.ID]
			if !ok {
				return &WorkflowError{Kind: KindNotFound, Message: "rating does not belong to this delivery"}
			}
			if rating.DriverID != edit.DriverID {
				return &WorkflowError{Kind: KindValidation, Message: "rating driver cannot be changed; delete and recreate instead"}
			}

			updated := ratingFromScores(edit.Rating)
			updated.ID = rating.ID
			updated.DeliveryID = rating.DeliveryID
			updated.DriverID = rating.DriverID
			if err := tx.Save(&updated).Error; err != nil {
				return err
			}
			kept[rating.ID] = true
			touched[rating.DriverID] = true
			continue
		}

		var driver models.Driver
		if err := tx.First(&driver, edit.DriverID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return driverNotFoundError(edit.DriverID)
			}
			return err
		}
		rating := ratingFromScores(edit.Rating)
		rating.DeliveryID = delivery.ID
		rating.DriverID = driver.ID
		if err := tx.Create(&rating).Error; err != nil {
			return err
		}
		touched[driver.ID] = true
	}

	for _, r := range existing {
		if kept[r.ID] {
			continue
		}
		if err := tx.Delete(&models.DriverRating{}, r.ID).Error; err != nil {
			return err
		}
		touched[r.DriverID] = true
	}
	return nil
}

// resolveDriver returns the driver for an assignment: row-locked lookup when
// an id is supplied, inline creation otherwise
func resolveDriver(tx *gorm.DB, assignment models.DriverAssignment) (models.Driver, error) {
	var driver models.Driver
	if assignment.DriverID != nil {
		if err := lockForUpdate(tx).First(&driver, *assignment.DriverID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return driver, driverNotFoundError(*assignment.DriverID)
			}
			return driver, err
		}
		return driver, nil
	}

	if assignment.Driver == nil {
		return driver, &WorkflowError{Kind: KindValidation, Message: "driver assignment needs a driver_id or inline driver data"}
	}
	if !assignment.Driver.VariantFieldsValid() {
		return driver, &WorkflowError{Kind: KindValidation, Message: "missing required fields for driver type " + string(assignment.Driver.DriverType)}
	}

	driver = assignment.Driver.ToDriver()
	if err := tx.Create(&driver).Error; err != nil {
		return driver, err
	}
	return driver, nil
}

func ratingFromScores(scores models.RatingScores) models.DriverRating {
	return models.DriverRating{
		Punctuality:      scores.Punctuality,
		Professionalism:  scores.Professionalism,
		DeliveryQuality:  scores.DeliveryQuality,
		Communication:    scores.Communication,
		Safety:           scores.Safety,
		PolicyCompliance: scores.PolicyCompliance,
		Overall:          scores.Overall,
		Comments:         scores.Comments,
	}
}

// refreshDriverStats recomputes aggregates for every touched driver with
// per-driver error isolation: a failure is logged and skipped, never allowed
// to affect the already-committed delivery
func (s *CompletionService) refreshDriverStats(drivers []models.Driver) {
	for _, driver := range drivers {
		if err := RefreshDriverAggregates(s.db, driver.ID); err != nil {
			log.Printf("⚠️ Failed to refresh stats for driver %d: %v (delivery remains committed)", driver.ID, err)
		}
	}
}

// withLockRetry runs op, retrying on lock-wait timeouts and deadlocks with a
// doubling backoff before surfacing a terminal Contention error
func (s *CompletionService) withLockRetry(operation string, op func() error) error {
	delay := lockRetryBaseDelay
	var err error
	for attempt := 1; attempt <= lockRetryAttempts; attempt++ {
		err = op()
		if err == nil || !isLockContention(err) {
			return err
		}
		if attempt < lockRetryAttempts {
			log.Printf("⏳ Lock contention during %s (attempt %d/%d), retrying in %v: %v",
				operation, attempt, lockRetryAttempts, delay, err)
			time.Sleep(delay)
			delay *= 2
		}
	}
	log.Printf("❌ Lock contention during %s: retry budget exhausted: %v", operation, err)
	return &WorkflowError{Kind: KindContention, Message: "database contention while trying to " + operation}
}

// isLockContention classifies store errors by the driver's structured error
// code: deadlock detected, lock not available, serialization failure
func isLockContention(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40P01", "55P03", "40001":
			return true
		}
	}
	return false
}

// lockForUpdate adds SELECT ... FOR UPDATE where the dialect supports it.
// sqlite (used in tests) has no row locks; its single-writer lock already
// serializes competing transactions.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}
