package migration

import (
	"fmt"

	admissiondomain "github.com/smallbiznis/carebill/internal/admission/domain"
	auditdomain "github.com/smallbiznis/carebill/internal/audit/domain"
	directorydomain "github.com/smallbiznis/carebill/internal/directory/domain"
	invoicedomain "github.com/smallbiznis/carebill/internal/invoice/domain"
	paymentdomain "github.com/smallbiznis/carebill/internal/payment/domain"
	roomdomain "github.com/smallbiznis/carebill/internal/room/domain"
	"gorm.io/gorm"
)

// activeAdmissionIndexes mirror the partial unique indexes of 000004.
var activeAdmissionIndexes = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_admissions_active_patient ON admissions (patient_id) WHERE status = 'ACTIVE'`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_admissions_active_room ON admissions (room_id) WHERE status = 'ACTIVE'`,
}

// AutoMigrate builds the schema from the gorm models for stores without SQL
// migrations (sqlite).
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&roomdomain.Room{},
		&admissiondomain.Admission{},
		&invoicedomain.Invoice{},
		&invoicedomain.InvoiceItem{},
		&paymentdomain.Payment{},
		&directorydomain.Patient{},
		&directorydomain.Staff{},
		&auditdomain.AuditLog{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	for _, stmt := range activeAdmissionIndexes {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create partial index: %w", err)
		}
	}
	return nil
}
