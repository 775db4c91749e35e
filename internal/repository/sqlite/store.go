package sqlite

import (
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"suvidha-service/internal/config"
	"suvidha-service/internal/model"
	"suvidha-service/internal/util"
)

// ErrNotFound is returned by every repository in this package when the
// requested row does not exist.
var ErrNotFound = errors.New("record not found")

// Open connects to the helpdesk database, migrates the schema and seeds
// the department directory.
func Open(cfg *config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(cfg.SQLite.Path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	if err := migrate(db); err != nil {
		return nil, err
	}

	util.Info("SQLite store opened", util.String("path", cfg.SQLite.Path))
	return db, nil
}

// OpenInMemory is the test constructor.
func OpenInMemory() (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory sqlite: %w", err)
	}
	if err := migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.Citizen{},
		&model.ServiceRequest{},
		&model.RequestStatusHistory{},
		&model.Payment{},
		&model.Document{},
		&model.Notification{},
		&model.Department{},
		&model.EmergencyReport{},
		&model.Setting{},
	); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	if err := seedDepartments(db); err != nil {
		return err
	}
	return seedSettings(db)
}

func seedDepartments(db *gorm.DB) error {
	departments := []model.Department{
		{
			Code:      "electricity",
			Name:      "Electricity Board",
			NameHindi: "बिजली विभाग",
			Helpline:  "1912",
			Email:     "electricity@suvidha.gov.in",
			Services:  `["New Connection","Bill Payment","Power Outage","Meter Reading","Load Enhancement"]`,
		},
		{
			Code:      "water",
			Name:      "Water Supply Department",
			NameHindi: "जल आपूर्ति विभाग",
			Helpline:  "1916",
			Email:     "water@suvidha.gov.in",
			Services:  `["New Connection","Bill Payment","Leakage Complaint","Water Quality","Tanker Request"]`,
		},
		{
			Code:      "gas",
			Name:      "Gas Distribution",
			NameHindi: "गैस वितरण",
			Helpline:  "1906",
			Email:     "gas@suvidha.gov.in",
			Services:  `["New Connection","Cylinder Booking","Leak Report","Subsidy Query"]`,
		},
		{
			Code:      "waste",
			Name:      "Waste Management",
			NameHindi: "अपशिष्ट प्रबंधन",
			Helpline:  "155304",
			Email:     "waste@suvidha.gov.in",
			Services:  `["Garbage Collection","Street Cleaning","Bulk Waste Pickup","Public Toilet Maintenance"]`,
		},
	}

	for _, dept := range departments {
		var count int64
		if err := db.Model(&model.Department{}).Where("code = ?", dept.Code).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check department %s: %w", dept.Code, err)
		}
		if count == 0 {
			dept.CreatedAt = time.Now().UTC()
			if err := db.Create(&dept).Error; err != nil {
				return fmt.Errorf("failed to seed department %s: %w", dept.Code, err)
			}
		}
	}
	return nil
}

func seedSettings(db *gorm.DB) error {
	defaults := map[string]string{
		"app_name":             "SUVIDHA",
		"default_language":     "en",
		"upi_collect_vpa":      "suvidha.gov@axisbank",
		"feedback_window_days": "30",
	}
	for key, value := range defaults {
		var count int64
		if err := db.Model(&model.Setting{}).Where("key = ?", key).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check setting %s: %w", key, err)
		}
		if count == 0 {
			if err := db.Create(&model.Setting{Key: key, Value: value}).Error; err != nil {
				return fmt.Errorf("failed to seed setting %s: %w", key, err)
			}
		}
	}
	return nil
}
