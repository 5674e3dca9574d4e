package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/rs/zerolog/log"
)

// DB wraps a raw lib/pq pool for read-only directory queries.
type DB struct {
	conn *sql.DB
}

// Config holds database configuration
type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

// NewConnection creates a new database connection
func NewConnection(cfg Config) (*DB, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName,
	)

	conn, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// The directory is read once per run; a small pool is enough.
	conn.SetMaxOpenConns(5)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)
	conn.SetConnMaxIdleTime(2 * time.Minute)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Msg("✅ Instrument directory connection established")

	return &DB{conn: conn}, nil
}

// NewFromConn adopts an open *sql.DB.
func NewFromConn(conn *sql.DB) *DB {
	return &DB{conn: conn}
}

// ActiveInstruments lists active instrument codes, upper-cased and sorted.
func (db *DB) ActiveInstruments(ctx context.Context) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT code FROM instruments WHERE active = TRUE ORDER BY code ASC`)
	if err != nil {
		return nil, WrapDBError("ActiveInstruments", err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, WrapDBError("ActiveInstruments scan", err)
		}
		code = strings.ToUpper(strings.TrimSpace(code))
		if code != "" {
			codes = append(codes, code)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, WrapDBError("ActiveInstruments rows", err)
	}
	if len(codes) == 0 {
		return nil, NewNotFoundError("active instruments")
	}
	return codes, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	if db.conn != nil {
		log.Info().Msg("📡 Closing instrument directory connection...")
		return db.conn.Close()
	}
	return nil
}

// Ping checks if the database connection is alive
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}
