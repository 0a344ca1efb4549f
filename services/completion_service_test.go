package services

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/RamiBarakat/transporter-backend/database"
	"github.com/RamiBarakat/transporter-backend/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

func createTestUser(t *testing.T, db *gorm.DB) models.User {
	t.Helper()
	user := models.User{
		FullName:     "Test Coordinator",
		Email:        "coordinator@example.com",
		PasswordHash: "x",
		Role:         models.RoleCoordinator,
		IsActive:     true,
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	return user
}

func createTestRequest(t *testing.T, db *gorm.DB, status models.TransportationRequestStatus) models.TransportationRequest {
	t.Helper()
	request := models.TransportationRequest{
		RequestNumber: "REQ-2026-001",
		Origin:        "Amman",
		Destination:   "Aqaba",
		PickupDate:    time.Date(2026, 8, 20, 8, 0, 0, 0, time.UTC),
		TruckCount:    2,
		TruckType:     "flatbed",
		EstimatedCost: 1000,
		UrgencyLevel:  "medium",
		Status:        status,
	}
	if err := db.Create(&request).Error; err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	return request
}

func createTestDriver(t *testing.T, db *gorm.DB, name string) models.Driver {
	t.Helper()
	company := "Levant Freight Co."
	phone := "+962790000000"
	license := "TR-10001"
	driver := models.Driver{
		Name:          name,
		DriverType:    models.DriverTypeTransporter,
		CompanyName:   &company,
		PhoneNumber:   &phone,
		LicenseNumber: &license,
	}
	if err := db.Create(&driver).Error; err != nil {
		t.Fatalf("failed to create driver: %v", err)
	}
	return driver
}

func deliveryLogInput(driverID uint, overall int) *models.DeliveryLog {
	return &models.DeliveryLog{
		ActualPickupDate: time.Date(2026, 8, 20, 9, 30, 0, 0, time.UTC),
		ActualTruckCount: 2,
		InvoiceAmount:    1100,
		Notes:            "arrived with minor delay",
		Drivers: []models.DriverAssignment{
			{
				DriverID: &driverID,
				Rating: models.RatingScores{
					Punctuality:     4,
					Professionalism: 5,
					DeliveryQuality: 4,
					Communication:   5,
					Overall:         overall,
				},
			},
		},
	}
}

func TestLogDeliveryHappyPath(t *testing.T) {
	db := newTestDB(t)
	svc := NewCompletionService(db)
	user := createTestUser(t, db)
	request := createTestRequest(t, db, models.RequestStatusPlanned)
	driver := createTestDriver(t, db, "Omar Haddad")

	result, err := svc.LogDelivery(context.Background(), request.ID, deliveryLogInput(driver.ID, 4), user.ID)
	if err != nil {
		t.Fatalf("LogDelivery failed: %v", err)
	}
	if result.Delivery.ID == 0 {
		t.Fatal("expected delivery to be persisted")
	}
	if len(result.Drivers) != 1 || result.Drivers[0].ID != driver.ID {
		t.Fatalf("expected the assigned driver back, got %+v", result.Drivers)
	}

	var reloaded models.TransportationRequest
	if err := db.First(&reloaded, request.ID).Error; err != nil {
		t.Fatal(err)
	}
	if reloaded.Status != models.RequestStatusProcessing {
		t.Errorf("expected status processing, got %s", reloaded.Status)
	}

	var ratings []models.DriverRating
	if err := db.Where("delivery_id = ?", result.Delivery.ID).Find(&ratings).Error; err != nil {
		t.Fatal(err)
	}
	if len(ratings) != 1 || ratings[0].DriverID != driver.ID || ratings[0].Overall != 4 {
		t.Fatalf("unexpected ratings: %+v", ratings)
	}

	// Post-commit aggregate refresh
	var refreshed models.Driver
	if err := db.First(&refreshed, driver.ID).Error; err != nil {
		t.Fatal(err)
	}
	if refreshed.OverallRating != 4.0 {
		t.Errorf("expected overall rating 4.0, got %v", refreshed.OverallRating)
	}
	if refreshed.TotalDeliveries != 1 {
		t.Errorf("expected 1 total delivery, got %d", refreshed.TotalDeliveries)
	}
	if refreshed.LastDelivery == nil {
		t.Error("expected last delivery to be set")
	}
}

func TestLogDeliveryCreatesInlineDriver(t *testing.T) {
	db := newTestDB(t)
	svc := NewCompletionService(db)
	user := createTestUser(t, db)
	request := createTestRequest(t, db, models.RequestStatusPlanned)

	employee := "EMP-0300"
	department := "Fleet Operations"
	hired := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	input := &models.DeliveryLog{
		ActualPickupDate: time.Now(),
		ActualTruckCount: 1,
		Drivers: []models.DriverAssignment{
			{
				Driver: &models.DriverCreate{
					Name:           "Khaled Najjar",
					DriverType:     models.DriverTypeInHouse,
					EmployeeNumber: &employee,
					Department:     &department,
					HireDate:       &hired,
				},
				Rating: models.RatingScores{
					Punctuality:     5,
					Professionalism: 5,
					Safety:          4,
					Overall:         5,
				},
			},
		},
	}

	result, err := svc.LogDelivery(context.Background(), request.ID, input, user.ID)
	if err != nil {
		t.Fatalf("LogDelivery failed: %v", err)
	}
	if len(result.Drivers) != 1 {
		t.Fatalf("expected one created driver, got %d", len(result.Drivers))
	}

	created := result.Drivers[0]
	if created.DriverType != models.DriverTypeInHouse {
		t.Errorf("expected in_house driver, got %s", created.DriverType)
	}
	if created.EmployeeNumber == nil || *created.EmployeeNumber != employee {
		t.Error("expected employee number to be set")
	}
	if created.CompanyName != nil {
		t.Error("in-house driver must not carry transporter fields")
	}
}

func TestLogDeliveryReplacesOnRetry(t *testing.T) {
	db := newTestDB(t)
	svc := NewCompletionService(db)
	user := createTestUser(t, db)
	request := createTestRequest(t, db, models.RequestStatusPlanned)
	driver := createTestDriver(t, db, "Omar Haddad")

	first, err := svc.LogDelivery(context.Background(), request.ID, deliveryLogInput(driver.ID, 2), user.ID)
	if err != nil {
		t.Fatalf("first LogDelivery failed: %v", err)
	}

	// The client never saw the response; it retries with corrected data
	second, err := svc.LogDelivery(context.Background(), request.ID, deliveryLogInput(driver.ID, 5), user.ID)
	if err != nil {
		t.Fatalf("retry LogDelivery failed: %v", err)
	}
	if second.Delivery.ID == first.Delivery.ID {
		t.Error("retry must replace the delivery, not reuse it")
	}

	var deliveryCount int64
	if err := db.Model(&models.Delivery{}).Where("request_id = ?", request.ID).Count(&deliveryCount).Error; err != nil {
		t.Fatal(err)
	}
	if deliveryCount != 1 {
		t.Errorf("expected exactly one live delivery, got %d", deliveryCount)
	}

	// The first attempt's ratings must be gone entirely
	var orphaned int64
	if err := db.Unscoped().Model(&models.DriverRating{}).
		Where("delivery_id = ?", first.Delivery.ID).
		Count(&orphaned).Error; err != nil {
		t.Fatal(err)
	}
	if orphaned != 0 {
		t.Errorf("expected replaced ratings to be destroyed, found %d", orphaned)
	}

	// Aggregates reflect only the surviving attempt
	var refreshed models.Driver
	if err := db.First(&refreshed, driver.ID).Error; err != nil {
		t.Fatal(err)
	}
	if refreshed.OverallRating != 5.0 {
		t.Errorf("expected overall rating 5.0 after retry, got %v", refreshed.OverallRating)
	}
	if refreshed.TotalDeliveries != 1 {
		t.Errorf("expected 1 total delivery after retry, got %d", refreshed.TotalDeliveries)
	}
}

func TestLogDeliveryInvalidStates(t *testing.T) {
	for _, status := range []models.TransportationRequestStatus{
		models.RequestStatusCompleted,
		models.RequestStatusCancelled,
	} {
		t.Run(string(status), func(t *testing.T) {
			db := newTestDB(t)
			svc := NewCompletionService(db)
			user := createTestUser(t, db)
			request := createTestRequest(t, db, status)
			driver := createTestDriver(t, db, "Omar Haddad")

			_, err := svc.LogDelivery(context.Background(), request.ID, deliveryLogInput(driver.ID, 4), user.ID)
			if KindOf(err) != KindInvalidState {
				t.Fatalf("expected InvalidState, got %v", err)
			}
		})
	}
}

func TestLogDeliveryRequestNotFound(t *testing.T) {
	db := newTestDB(t)
	svc := NewCompletionService(db)
	driver := createTestDriver(t, db, "Omar Haddad")

	_, err := svc.LogDelivery(context.Background(), 9999, deliveryLogInput(driver.ID, 4), 1)
	if KindOf(err) != KindNotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestLogDeliveryUnknownDriverRollsBack(t *testing.T) {
	db := newTestDB(t)
	svc := NewCompletionService(db)
	user := createTestUser(t, db)
	request := createTestRequest(t, db, models.RequestStatusPlanned)

	_, err := svc.LogDelivery(context.Background(), request.ID, deliveryLogInput(9999, 4), user.ID)
	if KindOf(err) != KindDriverNotFound {
		t.Fatalf("expected DriverNotFound, got %v", err)
	}

	// The whole transaction must unwind: no delivery, status untouched
	var deliveryCount int64
	if err := db.Model(&models.Delivery{}).Where("request_id = ?", request.ID).Count(&deliveryCount).Error; err != nil {
		t.Fatal(err)
	}
	if deliveryCount != 0 {
		t.Errorf("expected no delivery after rollback, got %d", deliveryCount)
	}

	var reloaded models.TransportationRequest
	if err := db.First(&reloaded, request.ID).Error; err != nil {
		t.Fatal(err)
	}
	if reloaded.Status != models.RequestStatusPlanned {
		t.Errorf("expected status planned after rollback, got %s", reloaded.Status)
	}
}

func TestLogDeliveryInlineDriverMissingVariantFields(t *testing.T) {
	db := newTestDB(t)
	svc := NewCompletionService(db)
	user := createTestUser(t, db)
	request := createTestRequest(t, db, models.RequestStatusPlanned)

	input := &models.DeliveryLog{
		ActualPickupDate: time.Now(),
		ActualTruckCount: 1,
		Drivers: []models.DriverAssignment{
			{
				// Transporter without company/phone/license
				Driver: &models.DriverCreate{Name: "Incomplete", DriverType: models.DriverTypeTransporter},
				Rating: models.RatingScores{Punctuality: 3, Professionalism: 3, Overall: 3},
			},
		},
	}

	_, err := svc.LogDelivery(context.Background(), request.ID, input, user.ID)
	if KindOf(err) != KindValidation {
		t.Fatalf("expected Validation, got %v", err)
	}
}

func TestConfirmCompletion(t *testing.T) {
	db := newTestDB(t)
	svc := NewCompletionService(db)
	user := createTestUser(t, db)
	request := createTestRequest(t, db, models.RequestStatusPlanned)
	driver := createTestDriver(t, db, "Omar Haddad")

	// Confirming before anything was logged is rejected
	if err := svc.ConfirmCompletion(context.Background(), request.ID); KindOf(err) != KindInvalidState {
		t.Fatalf("expected InvalidState for confirm on planned, got %v", err)
	}

	if _, err := svc.LogDelivery(context.Background(), request.ID, deliveryLogInput(driver.ID, 4), user.ID); err != nil {
		t.Fatalf("LogDelivery failed: %v", err)
	}

	if err := svc.ConfirmCompletion(context.Background(), request.ID); err != nil {
		t.Fatalf("ConfirmCompletion failed: %v", err)
	}

	var reloaded models.TransportationRequest
	if err := db.First(&reloaded, request.ID).Error; err != nil {
		t.Fatal(err)
	}
	if reloaded.Status != models.RequestStatusCompleted {
		t.Fatalf("expected status completed, got %s", reloaded.Status)
	}

	// Double confirm is rejected, state unchanged
	if err := svc.ConfirmCompletion(context.Background(), request.ID); KindOf(err) != KindInvalidState {
		t.Fatalf("expected InvalidState for double confirm, got %v", err)
	}

	// A completed request can no longer be re-logged
	if _, err := svc.LogDelivery(context.Background(), request.ID, deliveryLogInput(driver.ID, 4), user.ID); KindOf(err) != KindInvalidState {
		t.Fatalf("expected InvalidState for re-log after completion, got %v", err)
	}
}

func TestConfirmCompletionNotFound(t *testing.T) {
	db := newTestDB(t)
	svc := NewCompletionService(db)

	if err := svc.ConfirmCompletion(context.Background(), 9999); KindOf(err) != KindNotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestCancel(t *testing.T) {
	db := newTestDB(t)
	svc := NewCompletionService(db)

	planned := createTestRequest(t, db, models.RequestStatusPlanned)
	if err := svc.Cancel(context.Background(), planned.ID); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	var reloaded models.TransportationRequest
	if err := db.First(&reloaded, planned.ID).Error; err != nil {
		t.Fatal(err)
	}
	if reloaded.Status != models.RequestStatusCancelled {
		t.Errorf("expected cancelled, got %s", reloaded.Status)
	}

	completed := models.TransportationRequest{
		RequestNumber: "REQ-2026-002",
		Origin:        "Amman",
		Destination:   "Irbid",
		PickupDate:    time.Now(),
		TruckCount:    1,
		Status:        models.RequestStatusCompleted,
	}
	if err := db.Create(&completed).Error; err != nil {
		t.Fatal(err)
	}
	if err := svc.Cancel(context.Background(), completed.ID); KindOf(err) != KindInvalidState {
		t.Fatalf("expected InvalidState cancelling a completed request, got %v", err)
	}
}

func TestUpdateCompletedDeliveryRatingDiff(t *testing.T) {
	db := newTestDB(t)
	svc := NewCompletionService(db)
	user := createTestUser(t, db)
	request := createTestRequest(t, db, models.RequestStatusPlanned)
	driverA := createTestDriver(t, db, "Omar Haddad")
	driverB := createTestDriver(t, db, "Samir Qasem")
	driverC := createTestDriver(t, db, "Nabil Aoun")

	input := deliveryLogInput(driverA.ID, 3)
	input.Drivers = append(input.Drivers, models.DriverAssignment{
		DriverID: &driverB.ID,
		Rating:   models.RatingScores{Punctuality: 2, Professionalism: 2, Overall: 2},
	})

	result, err := svc.LogDelivery(context.Background(), request.ID, input, user.ID)
	if err != nil {
		t.Fatalf("LogDelivery failed: %v", err)
	}
	if err := svc.ConfirmCompletion(context.Background(), request.ID); err != nil {
		t.Fatalf("ConfirmCompletion failed: %v", err)
	}

	var existing []models.DriverRating
	if err := db.Where("delivery_id = ?", result.Delivery.ID).Order("id").Find(&existing).Error; err != nil {
		t.Fatal(err)
	}
	if len(existing) != 2 {
		t.Fatalf("expected 2 ratings, got %d", len(existing))
	}
	ratingA := existing[0] // driverA
	// existing[1] (driverB) is deliberately omitted from the diff: deleted

	newAmount := 1500.0
	update := &models.DeliveryUpdate{
		InvoiceAmount: &newAmount,
		Ratings: []models.RatingEdit{
			{ // update driverA's rating in place
				ID:       &ratingA.ID,
				DriverID: driverA.ID,
				Rating:   models.RatingScores{Punctuality: 5, Professionalism: 5, Overall: 5},
			},
			{ // add a rating for driverC
				DriverID: driverC.ID,
				Rating:   models.RatingScores{Punctuality: 4, Professionalism: 4, Overall: 4},
			},
		},
	}

	delivery, err := svc.UpdateCompletedDelivery(context.Background(), request.ID, update)
	if err != nil {
		t.Fatalf("UpdateCompletedDelivery failed: %v", err)
	}

	var reloadedDelivery models.Delivery
	if err := db.First(&reloadedDelivery, delivery.ID).Error; err != nil {
		t.Fatal(err)
	}
	if reloadedDelivery.InvoiceAmount != 1500 {
		t.Errorf("expected invoice 1500, got %v", reloadedDelivery.InvoiceAmount)
	}

	var after []models.DriverRating
	if err := db.Where("delivery_id = ?", delivery.ID).Find(&after).Error; err != nil {
		t.Fatal(err)
	}
	if len(after) != 2 {
		t.Fatalf("expected 2 ratings after diff, got %d", len(after))
	}
	byDriver := map[uint]models.DriverRating{}
	for _, r := range after {
		byDriver[r.DriverID] = r
	}
	if r, ok := byDriver[driverA.ID]; !ok || r.Overall != 5 || r.ID != ratingA.ID {
		t.Errorf("driverA rating not updated in place: %+v", r)
	}
	if _, ok := byDriver[driverB.ID]; ok {
		t.Error("driverB rating should have been deleted")
	}
	if r, ok := byDriver[driverC.ID]; !ok || r.Overall != 4 {
		t.Errorf("driverC rating not created: %+v", r)
	}

	// All three drivers' aggregates were refreshed
	var b models.Driver
	if err := db.First(&b, driverB.ID).Error; err != nil {
		t.Fatal(err)
	}
	if b.OverallRating != 0 || b.TotalDeliveries != 0 {
		t.Errorf("driverB aggregates not cleared after rating deletion: %+v", b)
	}
	var c models.Driver
	if err := db.First(&c, driverC.ID).Error; err != nil {
		t.Fatal(err)
	}
	if c.OverallRating != 4.0 || c.TotalDeliveries != 1 {
		t.Errorf("driverC aggregates not refreshed: %+v", c)
	}
}

func TestUpdateCompletedDeliveryForeignRatingRejected(t *testing.T) {
	db := newTestDB(t)
	svc := NewCompletionService(db)
	user := createTestUser(t, db)
	driver := createTestDriver(t, db, "Omar Haddad")

	// Two completed requests, each with its own delivery and rating
	first := createTestRequest(t, db, models.RequestStatusPlanned)
	second := models.TransportationRequest{
		RequestNumber: "REQ-2026-002",
		Origin:        "Zarqa",
		Destination:   "Irbid",
		PickupDate:    time.Now(),
		TruckCount:    1,
		Status:        models.RequestStatusPlanned,
	}
	if err := db.Create(&second).Error; err != nil {
		t.Fatal(err)
	}

	firstResult, err := svc.LogDelivery(context.Background(), first.ID, deliveryLogInput(driver.ID, 4), user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.LogDelivery(context.Background(), second.ID, deliveryLogInput(driver.ID, 3), user.ID); err != nil {
		t.Fatal(err)
	}
	if err := svc.ConfirmCompletion(context.Background(), first.ID); err != nil {
		t.Fatal(err)
	}
	if err := svc.ConfirmCompletion(context.Background(), second.ID); err != nil {
		t.Fatal(err)
	}

	var firstRating models.DriverRating
	if err := db.Where("delivery_id = ?", firstResult.Delivery.ID).First(&firstRating).Error; err != nil {
		t.Fatal(err)
	}

	// Editing the second request's delivery with the first one's rating id
	update := &models.DeliveryUpdate{
		Ratings: []models.RatingEdit{
			{
				ID:       &firstRating.ID,
				DriverID: driver.ID,
				Rating:   models.RatingScores{Punctuality: 1, Professionalism: 1, Overall: 1},
			},
		},
	}
	_, err = svc.UpdateCompletedDelivery(context.Background(), second.ID, update)
	if KindOf(err) != KindNotFound {
		t.Fatalf("expected NotFound for foreign rating id, got %v", err)
	}
}

func TestUpdateCompletedDeliveryRequiresCompleted(t *testing.T) {
	db := newTestDB(t)
	svc := NewCompletionService(db)
	user := createTestUser(t, db)
	request := createTestRequest(t, db, models.RequestStatusPlanned)
	driver := createTestDriver(t, db, "Omar Haddad")

	if _, err := svc.LogDelivery(context.Background(), request.ID, deliveryLogInput(driver.ID, 4), user.ID); err != nil {
		t.Fatal(err)
	}

	// Still processing: the edit flow is closed until the client confirms
	notes := "late edit"
	_, err := svc.UpdateCompletedDelivery(context.Background(), request.ID, &models.DeliveryUpdate{Notes: &notes})
	if KindOf(err) != KindInvalidState {
		t.Fatalf("expected InvalidState, got %v", err)
	}
}
