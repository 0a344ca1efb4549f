package services

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/RamiBarakat/transporter-backend/models"
)

func TestCalculateSummaryEmpty(t *testing.T) {
	summary := CalculateSummary(nil)

	if summary.TotalRatings != 0 {
		t.Errorf("expected 0 total ratings, got %d", summary.TotalRatings)
	}
	if summary.AverageOverall != 0 || summary.AveragePunctuality != 0 ||
		summary.AverageProfessionalism != 0 || summary.AverageDeliveryQuality != 0 ||
		summary.AverageCommunication != 0 || summary.AverageSafety != 0 {
		t.Errorf("expected all-zero summary for empty input, got %+v", summary)
	}
}

func TestCalculateSummaryAverages(t *testing.T) {
	ratings := []models.DriverRating{
		{Punctuality: 5, Professionalism: 4, Overall: 5, DeliveryQuality: 4, Communication: 3},
		{Punctuality: 3, Professionalism: 4, Overall: 4, DeliveryQuality: 5, Communication: 5},
		{Punctuality: 4, Professionalism: 2, Overall: 3},
	}

	summary := CalculateSummary(ratings)

	if summary.TotalRatings != 3 {
		t.Fatalf("expected 3 total ratings, got %d", summary.TotalRatings)
	}
	if summary.AveragePunctuality != 4.0 {
		t.Errorf("punctuality: expected 4.0, got %v", summary.AveragePunctuality)
	}
	if summary.AverageProfessionalism != 3.3 {
		t.Errorf("professionalism: expected 3.3, got %v", summary.AverageProfessionalism)
	}
	if summary.AverageOverall != 4.0 {
		t.Errorf("overall: expected 4.0, got %v", summary.AverageOverall)
	}
	// Optional dimensions average only over the ratings that scored them
	if summary.AverageDeliveryQuality != 4.5 {
		t.Errorf("delivery quality: expected 4.5, got %v", summary.AverageDeliveryQuality)
	}
	if summary.AverageCommunication != 4.0 {
		t.Errorf("communication: expected 4.0, got %v", summary.AverageCommunication)
	}
	if summary.AverageSafety != 0 {
		t.Errorf("safety: expected 0 when never scored, got %v", summary.AverageSafety)
	}
}

func TestCalculateSummaryOrderInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	ratings := make([]models.DriverRating, 50)
	for i := range ratings {
		ratings[i] = models.DriverRating{
			Punctuality:     rng.Intn(5) + 1,
			Professionalism: rng.Intn(5) + 1,
			Overall:         rng.Intn(5) + 1,
			DeliveryQuality: rng.Intn(6),
			Communication:   rng.Intn(6),
			Safety:          rng.Intn(6),
		}
	}

	want := CalculateSummary(ratings)

	for trial := 0; trial < 10; trial++ {
		shuffled := make([]models.DriverRating, len(ratings))
		copy(shuffled, ratings)
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})

		got := CalculateSummary(shuffled)
		if got != want {
			t.Fatalf("summary changed under reordering: want %+v, got %+v", want, got)
		}
	}
}

func TestRefreshDriverAggregates(t *testing.T) {
	db := newTestDB(t)
	driver := createTestDriver(t, db, "Omar Haddad")

	older := time.Date(2026, 8, 10, 9, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 8, 18, 14, 0, 0, 0, time.UTC)

	// Two completed requests, the later delivery logged first: the last
	// delivery date must come from the actual pickup dates, not insert order
	for i, pickup := range []time.Time{newer, older} {
		request := models.TransportationRequest{
			RequestNumber: fmt.Sprintf("REQ-2026-%03d", i+1),
			Origin:        "Amman",
			Destination:   "Aqaba",
			PickupDate:    pickup,
			TruckCount:    1,
			Status:        models.RequestStatusCompleted,
		}
		if err := db.Create(&request).Error; err != nil {
			t.Fatal(err)
		}
		delivery := models.Delivery{
			RequestID:        request.ID,
			ActualPickupDate: pickup,
			ActualTruckCount: 1,
			LoggedAt:         pickup,
		}
		if err := db.Create(&delivery).Error; err != nil {
			t.Fatal(err)
		}
		rating := models.DriverRating{
			DeliveryID:      delivery.ID,
			DriverID:        driver.ID,
			Punctuality:     3,
			Professionalism: 3,
			Overall:         2 + 2*i, // 2 and 4
		}
		if err := db.Create(&rating).Error; err != nil {
			t.Fatal(err)
		}
	}

	if err := RefreshDriverAggregates(db, driver.ID); err != nil {
		t.Fatalf("RefreshDriverAggregates failed: %v", err)
	}

	var refreshed models.Driver
	if err := db.First(&refreshed, driver.ID).Error; err != nil {
		t.Fatal(err)
	}
	if refreshed.OverallRating != 3.0 {
		t.Errorf("expected overall rating 3.0, got %v", refreshed.OverallRating)
	}
	if refreshed.TotalDeliveries != 2 {
		t.Errorf("expected 2 total deliveries, got %d", refreshed.TotalDeliveries)
	}
	if refreshed.LastDelivery == nil {
		t.Fatal("expected last delivery to be set")
	}
	if !refreshed.LastDelivery.Equal(newer) {
		t.Errorf("expected last delivery %v, got %v", newer, refreshed.LastDelivery)
	}
}

func TestRoundAverage(t *testing.T) {
	tests := []struct {
		sum, count int
		want       float64
	}{
		{0, 0, 0},
		{10, 3, 3.3},
		{11, 3, 3.7},
		{5, 2, 2.5},
		{9, 2, 4.5},
		{25, 5, 5.0},
	}

	for _, tt := range tests {
		if got := roundAverage(tt.sum, tt.count); got != tt.want {
			t.Errorf("roundAverage(%d, %d) = %v, want %v", tt.sum, tt.count, got, tt.want)
		}
	}
}
