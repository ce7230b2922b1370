package aisdk

import (
	"context"
)

// ModelLister is implemented by vendors that can enumerate their models.
type ModelLister interface {
	ListModels(ctx context.Context) ([]*ModelInfo, error)
}

// ModelInfo contains information about a specific model
type ModelInfo struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Created       int64  `json:"created,omitempty"` // Unix timestamp
	Description   string `json:"description"`
	ContextLength int    `json:"context_length"`
	OwnedBy       string `json:"owned_by,omitempty"`
}
