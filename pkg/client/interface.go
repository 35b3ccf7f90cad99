// Package client defines the contract shared by the vision model backends
// and the parsing of their JSON answers.
package client

import (
	"context"

	"github.com/menta2k/widefit/pkg/types"
)

// VisionClient is a chat backend that can look at an image
type VisionClient interface {
	// Ping reports whether the backend is reachable
	Ping(ctx context.Context) error
	AnalyzeImage(ctx context.Context, model, prompt, imgB64 string) (*types.AnalysisResult, error)
}
