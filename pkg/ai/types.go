// Package ai bridges the playground to a generative text provider for code
// explanations, Q&A and description translation.
package ai

import (
	"context"
	"errors"
)

var (
	// ErrProviderNotConfigured is returned before any network call when no credential is set.
	ErrProviderNotConfigured = errors.New("ai provider is not configured")
	// ErrBlocked is returned when generated text exceeds a safety threshold.
	ErrBlocked = errors.New("ai response blocked by safety settings")
	// ErrEmptyResponse is returned when the provider produced no text.
	ErrEmptyResponse = errors.New("ai provider returned an empty response")
	// ErrStructureMismatch is returned when a translation altered the HTML tag structure.
	ErrStructureMismatch = errors.New("translated html does not preserve markup structure")
)

// HarmCategory names a content-safety dimension.
type HarmCategory string

const (
	HarmCategoryHarassment HarmCategory = "HARM_CATEGORY_HARASSMENT"
	HarmCategoryHate       HarmCategory = "HARM_CATEGORY_HATE_SPEECH"
	HarmCategorySexual     HarmCategory = "HARM_CATEGORY_SEXUALLY_EXPLICIT"
	HarmCategoryDangerous  HarmCategory = "HARM_CATEGORY_DANGEROUS_CONTENT"
)

// BlockThreshold is the minimum likelihood at which content is blocked.
type BlockThreshold string

const (
	BlockLowAndAbove    BlockThreshold = "BLOCK_LOW_AND_ABOVE"
	BlockMediumAndAbove BlockThreshold = "BLOCK_MEDIUM_AND_ABOVE"
	BlockOnlyHigh       BlockThreshold = "BLOCK_ONLY_HIGH"
	BlockNone           BlockThreshold = "BLOCK_NONE"
)

// Cutoff maps a threshold to a moderation score at or above which content is blocked.
// The second value is false for BlockNone.
func (t BlockThreshold) Cutoff() (float64, bool) {
	switch t {
	case BlockLowAndAbove:
		return 0.2, true
	case BlockMediumAndAbove:
		return 0.5, true
	case BlockOnlyHigh:
		return 0.8, true
	default:
		return 0, false
	}
}

// SafetySetting pairs a category with its blocking threshold.
type SafetySetting struct {
	Category  HarmCategory
	Threshold BlockThreshold
}

// GenerateRequest is one stateless text-generation call.
type GenerateRequest struct {
	Model             string
	Temperature       float32
	TopP              float32
	MaxOutputTokens   int
	Safety            []SafetySetting
	SystemInstruction string
	Content           string
}

// Provider produces text for a request.
type Provider interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}
