package models

import "time"

// ClassFile is an uploaded class material. WeekNumber is a display label
// resolved against the class week buckets at read time, never a stored date
// range.
type ClassFile struct {
	ID         string    `db:"id" json:"id"`
	ClassID    string    `db:"class_id" json:"class_id"`
	Title      string    `db:"title" json:"title"`
	WeekNumber *int      `db:"week_number" json:"week_number,omitempty"`
	IsCurrent  bool      `db:"is_current" json:"is_current"`
	FilePath   string    `db:"file_path" json:"-"`
	MimeType   string    `db:"mime_type" json:"mime_type"`
	SizeBytes  int64     `db:"size_bytes" json:"size_bytes"`
	UploadedBy string    `db:"uploaded_by" json:"uploaded_by"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// ClassFileFilter narrows material listings.
type ClassFileFilter struct {
	ClassID     string
	WeekNumber  *int
	OnlyCurrent bool
}
