package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math/big"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/nomisma/internal/config"
	"github.com/erazemk/nomisma/internal/db"
	"github.com/erazemk/nomisma/internal/model"
	"github.com/erazemk/nomisma/internal/store"
)

func newInitCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the database and the first administrator",
		Long: `Creates a new SQLite database, initializes the schema and creates an
administrator account with a random password. The password is printed once.`,
		Example: `  nomisma init --db /var/lib/nomisma/console.sqlite3 --admin-user curator`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(cfg.DB); err == nil {
				return fmt.Errorf("database file %s already exists", cfg.DB)
			}
			database, password, err := initDatabase(cmd.Context(), cfg.DB, cfg.AdminUser)
			if err != nil {
				return err
			}
			database.Close()
			printInitResult(cmd.OutOrStdout(), cfg.DB, cfg.AdminUser, password)
			return nil
		},
	}
	cmd.Flags().StringP(config.FlagAdminUser, "u", "", "admin username (default Admin)")
	return cmd
}

// ensureDatabase creates the database with an administrator when the file
// does not exist yet.
func ensureDatabase(ctx context.Context, out io.Writer, path, adminUser string) error {
	if _, err := os.Stat(path); !errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	database, password, err := initDatabase(ctx, path, adminUser)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	database.Close()
	printInitResult(out, path, adminUser, password)
	fmt.Fprintln(out)
	return nil
}

// initDatabase creates a new database, ensures the schema, and creates the admin user.
func initDatabase(ctx context.Context, path, adminUsername string) (*sql.DB, string, error) {
	database, err := db.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("opening database: %w", err)
	}

	fail := func(format string, err error) (*sql.DB, string, error) {
		database.Close()
		os.Remove(path)
		return nil, "", fmt.Errorf(format, err)
	}

	if err := db.EnsureSchema(database); err != nil {
		return fail("ensuring schema: %w", err)
	}

	password, err := generatePassword(16)
	if err != nil {
		return fail("generating password: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fail("hashing password: %w", err)
	}

	if _, err := store.CreateUser(ctx, database, adminUsername, string(hash), model.RoleAdmin); err != nil {
		return fail("creating admin user: %w", err)
	}

	return database, password, nil
}

// printInitResult prints the database initialization result.
func printInitResult(out io.Writer, dbPath, username, password string) {
	fmt.Fprintf(out, "Database created: %s\n", dbPath)
	fmt.Fprintln(out, "Schema initialized.")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Admin account created:")
	fmt.Fprintf(out, "  Username: %s\n", username)
	fmt.Fprintf(out, "  Password: %s\n", password)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Save this password, it cannot be recovered.")
	fmt.Fprintln(out, "The admin can change it after logging in.")
}

// generatePassword creates a random password of the given length.
func generatePassword(length int) (string, error) {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%&*"
	result := make([]byte, length)
	for i := range result {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		result[i] = charset[n.Int64()]
	}
	return string(result), nil
}
