package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	invoicedomain "github.com/smallbiznis/duespay/internal/invoice/domain"
	memberdomain "github.com/smallbiznis/duespay/internal/member/domain"
	paymentdomain "github.com/smallbiznis/duespay/internal/payment/domain"
	reminderdomain "github.com/smallbiznis/duespay/internal/reminder/domain"
	settingsdomain "github.com/smallbiznis/duespay/internal/settings/domain"
	"gorm.io/gorm"
)

const migrationsDir = "migrations"

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// openPeriodGuardSQL mirrors 000002 for dialects that are migrated with AutoMigrate.
const openPeriodGuardSQL = `CREATE UNIQUE INDEX IF NOT EXISTS ux_invoices_member_open_period
	ON invoices (member_id, period)
	WHERE status IN ('Unpaid', 'Overdue', 'Pending Verification')`

// Run brings the schema up to date. Postgres uses the embedded SQL
// migrations; sqlite is migrated from the models so local runs and tests
// need no external tooling.
func Run(conn *gorm.DB) error {
	if conn == nil {
		return errors.New("migration database handle is required")
	}
	switch conn.Dialector.Name() {
	case "postgres":
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	default:
		return AutoMigrate(conn)
	}
}

func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Closing the migrator would close the shared *sql.DB.

	return nil
}

// AutoMigrate creates the schema from the gorm models.
func AutoMigrate(conn *gorm.DB) error {
	if err := conn.AutoMigrate(
		&memberdomain.Member{},
		&invoicedomain.Invoice{},
		&paymentdomain.Payment{},
		&reminderdomain.LogEntry{},
		&settingsdomain.EmailSettings{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	// MySQL has no partial indexes; the generator's period check still applies there.
	if conn.Dialector.Name() == "mysql" {
		return nil
	}
	if err := conn.Exec(openPeriodGuardSQL).Error; err != nil {
		return fmt.Errorf("create open period guard: %w", err)
	}
	return nil
}
