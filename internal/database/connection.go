// internal/database/connection.go
package database

import (
	"fmt"
	"log"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/freshrebate/grc-backend/internal/config"
	"github.com/freshrebate/grc-backend/internal/models"
)

var DB *gorm.DB

func Initialize(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var err error
	var gormConfig *gorm.Config

	// Configure GORM logger
	if cfg.LogLevel == "silent" {
		gormConfig = &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		}
	} else {
		gormConfig = &gorm.Config{
			Logger: logger.Default.LogMode(logger.Info),
		}
	}

	// Connect to database
	DB, err = gorm.Open(postgres.Open(cfg.DSN()), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Get underlying sql.DB
	sqlDB, err := DB.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// Configure connection pool
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.MaxLifetime) * time.Second)

	// Test connection
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("Database connection established successfully")
	return DB, nil
}

func Close(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		log.Printf("Error getting underlying sql.DB: %v", err)
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Printf("Error closing database connection: %v", err)
	} else {
		log.Println("Database connection closed successfully")
	}
}

func RunMigrations(db *gorm.DB) error {
	log.Println("Running database migrations...")

	// Enable UUID extension
	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS \"uuid-ossp\"").Error; err != nil {
		return fmt.Errorf("failed to create UUID extension: %w", err)
	}

	// Run auto-migrations
	err := db.AutoMigrate(
		&models.User{},
		&models.Purchase{},
		&models.Certificate{},
		&models.PendingQueueEntry{},
		&models.QualificationPeriod{},
		&models.Receipt{},
		&models.AdminSettings{},
		&models.AuditLog{},
		&models.AdminNotification{},
	)

	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// Create indexes
	if err := createIndexes(db); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	log.Println("Database migrations completed successfully")
	return nil
}

func createIndexes(db *gorm.DB) error {
	indexes := []string{
		// User indexes
		"CREATE INDEX IF NOT EXISTS idx_users_email ON users(email)",
		"CREATE INDEX IF NOT EXISTS idx_users_type_status ON users(user_type, status)",

		// Certificate indexes
		"CREATE INDEX IF NOT EXISTS idx_certificates_merchant_denom ON certificates(merchant_id, denomination)",
		"CREATE INDEX IF NOT EXISTS idx_certificates_member_status ON certificates(member_id, status)",
		"CREATE INDEX IF NOT EXISTS idx_certificates_issued_at ON certificates(issued_at DESC)",

		// Commit-time backstop for the single-active-certificate
		// invariant: at most one active certificate per member.
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_certificates_one_active ON certificates(member_id) WHERE status = 'active' AND deleted_at IS NULL",

		// Purchase ledger indexes
		"CREATE INDEX IF NOT EXISTS idx_purchases_merchant_denom ON purchases(merchant_id, denomination, payment_status)",
		"CREATE INDEX IF NOT EXISTS idx_purchases_created_at ON purchases(created_at DESC)",

		// Qualification period indexes
		"CREATE INDEX IF NOT EXISTS idx_periods_member ON qualification_periods(member_id)",
		"CREATE INDEX IF NOT EXISTS idx_periods_status ON qualification_periods(status)",
		"CREATE INDEX IF NOT EXISTS idx_periods_reward_pending ON qualification_periods(status, reward_sent_at)",

		// Receipt indexes
		"CREATE INDEX IF NOT EXISTS idx_receipts_certificate_month ON receipts(certificate_id, submitted_year, submitted_month)",
		"CREATE INDEX IF NOT EXISTS idx_receipts_status ON receipts(status, created_at DESC)",

		// One physical receipt per member: rejected receipts are
		// excluded so a rejection can be cured by resubmitting.
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_receipts_member_hash_live ON receipts(member_id, image_hash) WHERE status IN ('pending', 'approved') AND deleted_at IS NULL",

		// Queue indexes
		"CREATE INDEX IF NOT EXISTS idx_queue_member_order ON pending_queue_entries(member_id, sort_order)",

		// Admin indexes
		"CREATE INDEX IF NOT EXISTS idx_audit_logs_user_action ON audit_logs(user_id, action)",
		"CREATE INDEX IF NOT EXISTS idx_audit_logs_resource ON audit_logs(resource_type, resource_id)",
		"CREATE INDEX IF NOT EXISTS idx_audit_logs_created ON audit_logs(created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_admin_notifications_status ON admin_notifications(status, priority)",
		"CREATE INDEX IF NOT EXISTS idx_admin_settings_category ON admin_settings(category, key)",
	}

	for _, index := range indexes {
		if err := db.Exec(index).Error; err != nil {
			log.Printf("Warning: Failed to create index: %s, Error: %v", index, err)
			// Continue with other indexes instead of failing completely
		}
	}

	return nil
}

// Seed initial data
func SeedInitialData(db *gorm.DB) error {
	log.Println("Seeding initial data...")

	// Create default admin user
	var adminCount int64
	db.Model(&models.User{}).Where("user_type = ?", models.UserTypeAdmin).Count(&adminCount)

	if adminCount == 0 {
		admin := &models.User{
			Username: "admin",
			Email:    "admin@freshrebate.com",
			UserType: models.UserTypeAdmin,
			Status:   models.UserStatusActive,
			ProfileData: models.JSONB{
				"first_name": "System",
				"last_name":  "Administrator",
				"role":       "super_admin",
			},
		}

		if err := admin.SetPassword("admin123!@#"); err != nil {
			return fmt.Errorf("failed to set admin password: %w", err)
		}

		if err := db.Create(admin).Error; err != nil {
			return fmt.Errorf("failed to create admin user: %w", err)
		}

		log.Println("Default admin user created successfully")
	}

	// Create default platform settings
	defaultSettings := []models.AdminSettings{
		{
			Category:    "general",
			Key:         "platform_name",
			Value:       models.JSONB{"value": "FreshRebate"},
			DataType:    "string",
			Description: "Platform name displayed to users",
		},
		{
			Category:    "qualification",
			Key:         "monthly_target",
			Value:       models.JSONB{"value": models.MonthlyTarget},
			DataType:    "float",
			Description: "Approved receipt dollars required to qualify a month",
		},
		{
			Category:    "qualification",
			Key:         "reward_value",
			Value:       models.JSONB{"value": models.MonthlyRewardValue},
			DataType:    "float",
			Description: "Gift card value sent per qualified month",
		},
		{
			Category:    "receipts",
			Key:         "auto_approve_clean",
			Value:       models.JSONB{"value": true},
			DataType:    "boolean",
			Description: "Automatically approve receipts with no mismatch flags",
		},
		{
			Category:    "receipts",
			Key:         "reupload_window_days",
			Value:       models.JSONB{"value": models.ReuploadWindowDays},
			DataType:    "integer",
			Description: "Days a member may replace a rejected receipt",
		},
		{
			Category:    "certificates",
			Key:         "retention_days",
			Value:       models.JSONB{"value": models.RetentionDays},
			DataType:    "integer",
			Description: "Days a pending certificate may sit unclaimed before expiry",
		},
	}

	for _, setting := range defaultSettings {
		var count int64
		db.Model(&models.AdminSettings{}).Where("category = ? AND key = ?", setting.Category, setting.Key).Count(&count)

		if count == 0 {
			// Get admin user ID for the UpdatedBy field
			var admin models.User
			if err := db.Where("user_type = ?", models.UserTypeAdmin).First(&admin).Error; err == nil {
				setting.UpdatedBy = admin.ID
				if err := db.Create(&setting).Error; err != nil {
					log.Printf("Warning: Failed to create setting %s.%s: %v", setting.Category, setting.Key, err)
				}
			}
		}
	}

	log.Println("Initial data seeding completed")
	return nil
}

// Transaction helper
func WithTransaction(db *gorm.DB, fn func(*gorm.DB) error) error {
	tx := db.Begin()
	if tx.Error != nil {
		return tx.Error
	}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}
