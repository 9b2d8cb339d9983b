package db

import (
	"fmt"
	"os"
	"time"

	"github.com/AmaniTsuma/smartdesk-backend-sub000/pkg/models"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect opens the Postgres connection from environment configuration.
func Connect() (*gorm.DB, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		dsn = fmt.Sprintf(
			"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			envOrDefault("DB_HOST", "localhost"),
			envOrDefault("DB_PORT", "5432"),
			envOrDefault("DB_USER", "postgres"),
			os.Getenv("DB_PASSWORD"),
			envOrDefault("DB_NAME", "smartdesk"),
			envOrDefault("DB_SSLMODE", "disable"),
		)
	}

	gormLogLevel := logger.Warn
	if os.Getenv("DB_DEBUG") == "true" {
		gormLogLevel = logger.Info
	}

	database, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(gormLogLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := database.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return database, nil
}

// RunMigrations migrates the schema and creates the indexes the engine's
// queries depend on.
func RunMigrations(database *gorm.DB) error {
	if err := database.AutoMigrate(models.GetAllModels()...); err != nil {
		return fmt.Errorf("auto migration failed: %w", err)
	}

	// JSONB containment lookups on participants and the inbox ordering
	// both need index support.
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_conversations_participants ON conversations USING GIN (participants jsonb_path_ops)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_activity ON conversations (COALESCE(last_message_at, created_at) DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation_order ON messages (conversation_id, created_at, seq)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_unread ON messages (recipient_id) WHERE is_read = false AND is_deleted = false`,
	}
	for _, stmt := range indexes {
		if err := database.Exec(stmt).Error; err != nil {
			return fmt.Errorf("index creation failed: %w", err)
		}
	}

	log.Info().Msg("database migrations completed")
	return nil
}

// SeedInitialData creates the bootstrap administrator account when no admin
// exists yet. Credentials come from ADMIN_EMAIL / ADMIN_PASSWORD.
func SeedInitialData(database *gorm.DB) error {
	var count int64
	if err := database.Model(&models.User{}).Where("role = ?", models.RoleAdmin).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	email := envOrDefault("ADMIN_EMAIL", "admin@smartdesk.local")
	password := os.Getenv("ADMIN_PASSWORD")
	if password == "" {
		log.Warn().Msg("ADMIN_PASSWORD not set, skipping admin seeding")
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	admin := &models.User{
		Email:    email,
		Password: string(hash),
		Name:     "Administrator",
		Role:     models.RoleAdmin,
		IsActive: true,
	}
	if err := database.Create(admin).Error; err != nil {
		return fmt.Errorf("admin seeding failed: %w", err)
	}

	log.Info().Str("email", email).Msg("bootstrap administrator created")
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
