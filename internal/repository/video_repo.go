// Package repository provides data access for the authoritative video rows.
package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/clipforge/clipforge/internal/models"
)

// VideoRepository is the pipeline's write surface on the video table.
type VideoRepository interface {
	Create(ctx context.Context, video *models.Video) error
	GetByJobID(ctx context.Context, jobID string) (*models.Video, error)
	UpdateProgress(ctx context.Context, jobID, stage string, percent int, message string) error
	MarkCompleted(ctx context.Context, jobID, outputPath, title, thumbnailPath string) error
	MarkFailed(ctx context.Context, jobID, message string) error
}

// videoRepo implements VideoRepository using GORM.
type videoRepo struct {
	db *gorm.DB
}

// NewVideoRepository creates a new VideoRepository.
func NewVideoRepository(db *gorm.DB) VideoRepository {
	return &videoRepo{db: db}
}

func (r *videoRepo) Create(ctx context.Context, video *models.Video) error {
	if err := r.db.WithContext(ctx).Create(video).Error; err != nil {
		return fmt.Errorf("creating video row: %w", err)
	}
	return nil
}

func (r *videoRepo) GetByJobID(ctx context.Context, jobID string) (*models.Video, error) {
	var video models.Video
	if err := r.db.WithContext(ctx).Where("job_id = ?", jobID).First(&video).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting video by job id: %w", err)
	}
	return &video, nil
}

func (r *videoRepo) UpdateProgress(ctx context.Context, jobID, stage string, percent int, message string) error {
	result := r.db.WithContext(ctx).Model(&models.Video{}).
		Where("job_id = ?", jobID).
		Updates(map[string]any{
			"progress_stage":   stage,
			"progress_percent": percent,
			"progress_message": message,
			"status":           models.JobStatusProcessing,
		})
	if result.Error != nil {
		return fmt.Errorf("updating progress: %w", result.Error)
	}
	return nil
}

func (r *videoRepo) MarkCompleted(ctx context.Context, jobID, outputPath, title, thumbnailPath string) error {
	updates := map[string]any{
		"status":           models.JobStatusCompleted,
		"output_path":      outputPath,
		"progress_stage":   "",
		"progress_percent": 100,
		"progress_message": "Concluído!",
	}
	if title != "" {
		updates["title"] = title
	}
	if thumbnailPath != "" {
		updates["thumbnail_path"] = thumbnailPath
	}
	result := r.db.WithContext(ctx).Model(&models.Video{}).
		Where("job_id = ?", jobID).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("marking completed: %w", result.Error)
	}
	return nil
}

func (r *videoRepo) MarkFailed(ctx context.Context, jobID, message string) error {
	if len(message) > 200 {
		message = message[:200]
	}
	result := r.db.WithContext(ctx).Model(&models.Video{}).
		Where("job_id = ?", jobID).
		Updates(map[string]any{
			"status":           models.JobStatusFailed,
			"progress_stage":   "",
			"progress_percent": 0,
			"progress_message": message,
		})
	if result.Error != nil {
		return fmt.Errorf("marking failed: %w", result.Error)
	}
	return nil
}

// Ensure videoRepo implements VideoRepository at compile time.
var _ VideoRepository = (*videoRepo)(nil)
