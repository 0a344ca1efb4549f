package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/lib/pq"

	"github.com/RamiBarakat/transporter-backend/config"
)

// seedDemoData inserts demo drivers and transportation requests with plain
// SQL. Run against an already-migrated database:
//
//	transporter-backend seed
func seedDemoData() error {
	connString := os.Getenv("DB_URL")
	if connString == "" {
		c := config.AppConfig.Database
		connString = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
	}

	db, err := sql.Open("postgres", connString)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	if err := seedDrivers(db); err != nil {
		return err
	}
	return seedRequests(db)
}

func seedDrivers(db *sql.DB) error {
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM drivers WHERE deleted_at IS NULL").Scan(&count); err != nil {
		return fmt.Errorf("failed to count drivers: %w", err)
	}
	if count > 0 {
		log.Printf("⏭️ Drivers already seeded (%d present), skipping", count)
		return nil
	}

	transporters := []struct {
		name, company, phone, license string
	}{
		{"Omar Haddad", "Levant Freight Co.", "+962790001001", "TR-44821"},
		{"Samir Qasem", "Levant Freight Co.", "+962790001002", "TR-44830"},
		{"Nabil Aoun", "Cedar Line Transport", "+962790001003", "TR-51207"},
		{"Fadi Mansour", "Cedar Line Transport", "+962790001004", "TR-51244"},
	}
	for _, d := range transporters {
		_, err := db.Exec(`
			INSERT INTO drivers (name, driver_type, company_name, phone_number, license_number, created_at, updated_at)
			VALUES ($1, 'transporter', $2, $3, $4, NOW(), NOW())`,
			d.name, d.company, d.phone, d.license)
		if err != nil {
			return fmt.Errorf("failed to seed transporter %s: %w", d.name, err)
		}
	}

	inHouse := []struct {
		name, employee, department string
		hired                      time.Time
	}{
		{"Khaled Najjar", "EMP-0142", "Fleet Operations", time.Date(2021, 3, 15, 0, 0, 0, 0, time.UTC)},
		{"Yousef Barghouti", "EMP-0187", "Fleet Operations", time.Date(2022, 9, 1, 0, 0, 0, 0, time.UTC)},
		{"Hassan Dweik", "EMP-0203", "Regional Distribution", time.Date(2023, 6, 12, 0, 0, 0, 0, time.UTC)},
	}
	for _, d := range inHouse {
		_, err := db.Exec(`
			INSERT INTO drivers (name, driver_type, employee_number, department, hire_date, created_at, updated_at)
			VALUES ($1, 'in_house', $2, $3, $4, NOW(), NOW())`,
			d.name, d.employee, d.department, d.hired)
		if err != nil {
			return fmt.Errorf("failed to seed in-house driver %s: %w", d.name, err)
		}
	}

	log.Printf("✅ Seeded %d drivers", len(transporters)+len(inHouse))
	return nil
}

func seedRequests(db *sql.DB) error {
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM transportation_requests WHERE deleted_at IS NULL").Scan(&count); err != nil {
		return fmt.Errorf("failed to count requests: %w", err)
	}
	if count > 0 {
		log.Printf("⏭️ Requests already seeded (%d present), skipping", count)
		return nil
	}

	year := time.Now().Year()
	requests := []struct {
		origin, destination, truckType, urgency string
		trucks                                  int
		cost                                    float64
		pickupInDays                            int
	}{
		{"Amman", "Aqaba", "flatbed", "high", 2, 1450.00, 2},
		{"Zarqa", "Irbid", "box", "medium", 1, 380.00, 4},
		{"Amman", "Mafraq", "refrigerated", "critical", 3, 2100.00, 1},
		{"Aqaba", "Amman", "container", "low", 1, 990.00, 7},
		{"Irbid", "Amman", "box", "medium", 2, 520.00, 5},
	}
	for i, r := range requests {
		number := fmt.Sprintf("REQ-%d-%03d", year, i+1)
		pickup := time.Now().AddDate(0, 0, r.pickupInDays)
		_, err := db.Exec(`
			INSERT INTO transportation_requests
				(request_number, origin, destination, pickup_date, truck_count, truck_type,
				 estimated_cost, urgency_level, status, created_by_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'planned', 1, NOW(), NOW())`,
			number, r.origin, r.destination, pickup, r.trucks, r.truckType, r.cost, r.urgency)
		if err != nil {
			return fmt.Errorf("failed to seed request %s: %w", number, err)
		}
	}

	log.Printf("✅ Seeded %d transportation requests", len(requests))
	return nil
}
