// Package shared provides common functionality for pipeline stages.
package shared

import (
	"context"
)

// BaseStage provides common functionality for pipeline stages.
// Embed this in stage implementations to get default behaviors.
type BaseStage struct {
	id   string
	name string
}

// NewBaseStage creates a new BaseStage.
func NewBaseStage(id, name string) BaseStage {
	return BaseStage{
		id:   id,
		name: name,
	}
}

// ID returns the stage identifier.
func (b *BaseStage) ID() string {
	return b.id
}

// Name returns the human-readable stage name.
func (b *BaseStage) Name() string {
	return b.name
}

// Cleanup provides a default no-op cleanup implementation.
func (b *BaseStage) Cleanup(ctx context.Context) error {
	return nil
}
