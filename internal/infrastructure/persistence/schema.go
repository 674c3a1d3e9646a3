package persistence

import (
	"fmt"

	"github.com/casaviva/backoffice/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// activeDisbursementIndexSQL must stay in line with the payments migration.
const activeDisbursementIndexSQL = `CREATE UNIQUE INDEX IF NOT EXISTS ` + ActiveDisbursementIndex + `
ON payments (client_id, source)
WHERE status = 'active' AND source IN ('bank_credit', 'housing_subsidy', 'compensation_fund_subsidy')`

// AutoMigrate creates the sales schema from the models. Production
// databases are migrated with the SQL files under migrations/; this is for
// tests and local throwaway databases.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		return fmt.Errorf("auto-migrate models: %w", err)
	}
	if err := db.Exec(activeDisbursementIndexSQL).Error; err != nil {
		return fmt.Errorf("create %s: %w", ActiveDisbursementIndex, err)
	}
	return nil
}
