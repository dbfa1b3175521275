package model

import "gorm.io/gorm"

// AutoMigrate creates the document tables of the SQL store.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&DocumentRecord{},
		&DocumentField{},
	)
}
