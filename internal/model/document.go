package model

import "time"

// documents: one row per stored document.
type DocumentRecord struct {
	Path       string `gorm:"type:varchar(512);primaryKey"`
	Collection string `gorm:"type:varchar(512);not null;index"`
	DocID      string `gorm:"column:doc_id;type:varchar(255);not null"`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (DocumentRecord) TableName() string { return "documents" }

// document_fields: flattened leaves of a document, one row per field path.
// Value holds the JSON encoding of the leaf; an empty map is stored as "{}".
type DocumentField struct {
	Path  string `gorm:"type:varchar(512);primaryKey"`
	Field string `gorm:"type:varchar(512);primaryKey"`
	Value string `gorm:"type:text;not null"`
}

func (DocumentField) TableName() string { return "document_fields" }
