package models

import "time"

// Video is the authoritative relational row the front-end reads. The
// pipeline only updates status, progress and output columns; ownership of
// the rest stays with the front-end.
type Video struct {
	ID            uint   `gorm:"primaryKey"`
	JobID         string `gorm:"uniqueIndex;size:64"`
	URL           string `gorm:"size:500;not null"`
	Title         string `gorm:"size:255"`
	Status        JobStatus
	OutputPath    string `gorm:"size:500"`
	ThumbnailPath string `gorm:"size:500"`

	ProgressStage   string `gorm:"size:32"`
	ProgressPercent int
	ProgressMessage string `gorm:"size:255"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName keeps the table name the front-end expects.
func (Video) TableName() string { return "videos" }
