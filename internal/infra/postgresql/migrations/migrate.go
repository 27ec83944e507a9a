package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/reelforge/clip-engine/internal/repository"
	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		createBatchesTable(),
		createBatchItemsTable(),
		createUnitsTable(),
	})

	return m.Migrate()
}

func createBatchesTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_batches",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.BatchModel{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_batches_status_created ON batches (status, created_at)`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.BatchModel{})
		},
	}
}

func createBatchItemsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_batch_items",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.BatchItemModel{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE UNIQUE INDEX IF NOT EXISTS idx_batch_items_batch_order ON batch_items (batch_id, item_order)`,
				`CREATE INDEX IF NOT EXISTS idx_batch_items_status ON batch_items (batch_id, status)`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.BatchItemModel{})
		},
	}
}

func createUnitsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000003_create_units",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.UnitModel{}); err != nil {
				return err
			}
			// Units are kept for audit after their batch item is gone, so no FK.
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_units_batch_id ON units (batch_id) WHERE batch_id IS NOT NULL`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.UnitModel{})
		},
	}
}
