package schema

import "time"

// Producer represents the producers table - the identity making provenance claims
type Producer struct {
	// ID is the external producer identifier supplied by the caller
	ID string `gorm:"column:id;primaryKey;type:text"`
	// Name is the producer's display name (nil when provisioned with defaults)
	Name *string `gorm:"column:name;type:text"`
	// Location is the producer's registered location, if known
	Location *string `gorm:"column:location;type:text"`
	// CreatedAt is the timestamp when this producer was first seen
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
	// UpdatedAt is the timestamp when this producer was last updated
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now();type:timestamptz"`

	// Associations
	Records []ProvenanceRecord `gorm:"foreignKey:ProducerID"`
}

// TableName specifies the table name for the Producer model
func (Producer) TableName() string {
	return "producers"
}
