package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strconv"
)

// GetJWTSecret retrieves the JWT secret from the database.
// If no secret exists, it generates one, stores it, and returns it.
// Uses INSERT OR IGNORE + re-SELECT to avoid TOCTOU race on concurrent startup.
func GetJWTSecret(ctx context.Context, db *sql.DB) (string, error) {
	// Try to generate and insert first (safe against races).
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating jwt secret: %w", err)
	}
	candidate := hex.EncodeToString(buf)

	_, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO settings (key, value) VALUES ('jwt_secret', ?)`,
		candidate,
	)
	if err != nil {
		return "", fmt.Errorf("storing jwt_secret: %w", err)
	}

	// Always read back (either our insert or the existing value).
	var secret string
	err = db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = 'jwt_secret'`,
	).Scan(&secret)
	if err != nil {
		return "", fmt.Errorf("querying jwt_secret: %w", err)
	}

	return secret, nil
}

// GetSetting returns a setting value, or "" when it is not set.
func GetSetting(ctx context.Context, db *sql.DB, key string) (string, error) {
	var value string
	err := db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = ?`, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("getting setting %s: %w", key, err)
	}
	return value, nil
}

// SetSetting stores a setting value.
func SetSetting(ctx context.Context, db *sql.DB, key, value string) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("storing setting %s: %w", key, err)
	}
	return nil
}

// preferredCameraKey is the settings key of the preferred camera index.
const preferredCameraKey = "preferred_camera"

// GetPreferredCamera returns the preferred camera index, or -1 when unset.
func GetPreferredCamera(ctx context.Context, db *sql.DB) (int, error) {
	value, err := GetSetting(ctx, db, preferredCameraKey)
	if err != nil {
		return -1, err
	}
	if value == "" {
		return -1, nil
	}
	idx, err := strconv.Atoi(value)
	if err != nil || idx < 0 {
		return -1, nil
	}
	return idx, nil
}

// SetPreferredCamera stores the preferred camera index. A negative index
// clears it.
func SetPreferredCamera(ctx context.Context, db *sql.DB, index int) error {
	if index < 0 {
		if _, err := db.ExecContext(ctx, `DELETE FROM settings WHERE key = ?`, preferredCameraKey); err != nil {
			return fmt.Errorf("clearing preferred camera: %w", err)
		}
		return nil
	}
	return SetSetting(ctx, db, preferredCameraKey, strconv.Itoa(index))
}
