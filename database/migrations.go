package database

import (
	"fmt"
	"strings"

	"github.com/40acres/htlc-bridge/database/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type enumType struct {
	name string
	up   string
	down string
}

var enums = []enumType{
	{name: "swap_status", up: models.CreateSwapStatusEnumSQL(), down: models.DropSwapStatusEnumSQL()},
	{name: "chain", up: models.CreateChainEnumSQL(), down: models.DropChainEnumSQL()},
}

// EnumsSQL creates every enum type used by the tables.
func EnumsSQL() string {
	var sql strings.Builder
	for _, enum := range enums {
		sql.WriteString(enum.up)
		sql.WriteString("\n")
	}

	return sql.String()
}

// Models lists every table, parents first.
func Models() []interface{} {
	return []interface{}{
		&models.Swap{},
		&models.PartialFill{},
		&models.CounterEscrow{},
		&models.SwapIntent{},
		&models.ChainCursor{},
	}
}

func (d *Database) MigrateDatabase() error {
	err := d.orm.Transaction(func(tx *gorm.DB) error {
		for _, enum := range enums {
			var exists bool
			if err := tx.Raw("SELECT EXISTS (SELECT 1 FROM pg_type WHERE typname = ?)", enum.name).Scan(&exists).Error; err != nil {
				return err
			}
			if exists {
				continue
			}
			if err := tx.Exec(enum.up).Error; err != nil {
				return fmt.Errorf("failed to create enum %s: %w", enum.name, err)
			}
		}

		return tx.AutoMigrate(Models()...)
	})
	if err != nil {
		return fmt.Errorf("❌ Could not migrate database: %w", err)
	}
	log.Info("✅ Database migrated")

	return nil
}

// Rollback drops every table and enum type.
func (d *Database) Rollback() error {
	err := d.orm.Transaction(func(tx *gorm.DB) error {
		all := Models()
		for i := len(all) - 1; i >= 0; i-- {
			if err := tx.Migrator().DropTable(all[i]); err != nil {
				return err
			}
		}
		for _, enum := range enums {
			if err := tx.Exec(enum.down).Error; err != nil {
				return fmt.Errorf("failed to drop enum %s: %w", enum.name, err)
			}
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("❌ Could not roll back database: %w", err)
	}
	log.Info("⏪ Database rolled back")

	return nil
}

func (d *Database) Reset() error {
	if err := d.Rollback(); err != nil {
		return err
	}

	return d.MigrateDatabase()
}
