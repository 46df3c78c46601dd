package database

import (
	"contracthub/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

func Init(dsn string) error {
	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return err
	}

	return Migrate(DB)
}

// Migrate applies the schema. Split out so test fixtures can run it
// against their own database handle.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Contract{},
		&models.ContractMember{},
		&models.SupervisionAssignment{},
		&models.Invite{},
		&models.TimesheetTask{},
		&models.Submission{},
		&models.SupervisorApproval{},
	)
}

func GetDB() *gorm.DB {
	return DB
}
