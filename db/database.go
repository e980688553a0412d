package db

import (
	"database/sql"
	"fmt"
	"log"

	"TrackForge/config"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
)

var DB *sql.DB

// ConnectDB establishes a connection to the database.
func ConnectDB(cfg *config.Config) error {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)

	var err error
	DB, err = sql.Open("mysql", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	if err = DB.Ping(); err != nil {
		DB.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("Successfully connected to the database.")
	return nil
}

// InitDB initializes the database schema, creating tables if they don't exist.
func InitDB() error {
	if err := createTracksTable(); err != nil {
		return err
	}
	if err := createMixVersionsTable(); err != nil {
		return err
	}
	log.Println("Database initialization completed.")
	return nil
}

func createTracksTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS tracks (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		owner_id BIGINT NOT NULL,
		original_path VARCHAR(512) NOT NULL,
		original_filename VARCHAR(255) NOT NULL,
		format VARCHAR(32) NOT NULL DEFAULT 'unknown',
		bitrate INT NOT NULL DEFAULT 0,
		duration_seconds DOUBLE NOT NULL DEFAULT 0,
		bpm INT NOT NULL DEFAULT 0,
		musical_key VARCHAR(32) NOT NULL DEFAULT 'unknown',
		settings TEXT,
		status VARCHAR(16) NOT NULL DEFAULT 'uploaded',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		INDEX idx_owner (owner_id)
	);
	`
	_, err := DB.Exec(query)
	if err != nil {
		return fmt.Errorf("failed to create tracks table: %w", err)
	}
	return nil
}

func createMixVersionsTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS mix_versions (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		track_id BIGINT NOT NULL,
		idx INT NOT NULL,
		artifact_path VARCHAR(512) NOT NULL,
		sidecar_path VARCHAR(512),
		duration_seconds DOUBLE NOT NULL DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE KEY idx_track_version (track_id, idx)
	);
	`
	_, err := DB.Exec(query)
	if err != nil {
		return fmt.Errorf("failed to create mix_versions table: %w", err)
	}
	return nil
}
