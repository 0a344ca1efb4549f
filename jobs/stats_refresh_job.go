package jobs

import (
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/RamiBarakat/transporter-backend/models"
	"github.com/RamiBarakat/transporter-backend/services"
)

// StatsRefreshJob periodically recomputes driver aggregates from ratings and
// deliveries. The completion workflow refreshes aggregates best-effort after
// commit; this job repairs any drift left by swallowed failures.
type StatsRefreshJob struct {
	db       *gorm.DB
	interval time.Duration
	stopChan chan bool
}

// NewStatsRefreshJob creates a new stats refresh job
func NewStatsRefreshJob(db *gorm.DB, interval time.Duration) *StatsRefreshJob {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &StatsRefreshJob{
		db:       db,
		interval: interval,
		stopChan: make(chan bool),
	}
}

// Start begins the stats refresh job
func (j *StatsRefreshJob) Start() {
	go j.run()
	log.Println("🚀 Stats refresh job started")
}

// Stop stops the stats refresh job
func (j *StatsRefreshJob) Stop() {
	j.stopChan <- true
	log.Println("🛑 Stats refresh job stopped")
}

func (j *StatsRefreshJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.RefreshAll()
		case <-j.stopChan:
			return
		}
	}
}

// RefreshAll recomputes aggregates for every driver with at least one
// rating, with per-driver error isolation
func (j *StatsRefreshJob) RefreshAll() {
	var driverIDs []uint
	if err := j.db.Model(&models.DriverRating{}).
		Distinct("driver_id").
		Pluck("driver_id", &driverIDs).Error; err != nil {
		log.Printf("❌ Stats refresh: failed to list rated drivers: %v", err)
		return
	}

	refreshed := 0
	for _, id := range driverIDs {
		if err := services.RefreshDriverAggregates(j.db, id); err != nil {
			log.Printf("⚠️ Stats refresh failed for driver %d: %v", id, err)
			continue
		}
		refreshed++
	}

	if refreshed > 0 {
		log.Printf("📊 Stats refresh: reconciled aggregates for %d drivers", refreshed)
	}
}
