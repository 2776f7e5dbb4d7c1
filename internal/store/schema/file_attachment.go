package schema

import "time"

// FileAttachment represents the file_attachments table - a file attached to
// exactly one provenance record. The digest is computed over raw bytes at
// upload time and never recomputed implicitly. Deletion is a soft flag.
type FileAttachment struct {
	// ID is the internal database primary key
	ID uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	// RecordID references the owning provenance record
	RecordID uint64 `gorm:"column:record_id;not null;index:idx_attachments_record"`
	// OriginalName is the filename supplied by the uploader
	OriginalName string `gorm:"column:original_name;not null;type:text"`
	// StoredName is the server-side name (uuid-based, collision free)
	StoredName string `gorm:"column:stored_name;not null;type:text"`
	// Size is the byte size at upload time
	Size int64 `gorm:"column:size;not null"`
	// ContentType is the detected or supplied MIME type
	ContentType string `gorm:"column:content_type;type:text"`
	// Digest is the per-file digest over raw bytes
	Digest string `gorm:"column:digest;not null;type:text"`
	// Deleted marks the attachment as removed without dropping the row
	Deleted bool `gorm:"column:deleted;not null;default:false"`
	// CreatedAt is the upload timestamp
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the FileAttachment model
func (FileAttachment) TableName() string {
	return "file_attachments"
}
