package service

import (
	"context"

	"SigTrail/internal/domain/models"
)

// NarrativeSource tells callers whether the text came from the generator or
// from the deterministic fallback template. A degraded response is never
// mistaken for a generated one.
type NarrativeSource string

const (
	NarrativeGenerated NarrativeSource = "generated"
	NarrativeFallback  NarrativeSource = "fallback"
)

// Narrative is human-readable text describing a signal.
type Narrative struct {
	Text   string          `json:"text"`
	Source NarrativeSource `json:"source"`
}

// NarrativeGenerator produces a narrative for a signal. Implementations never
// fail: on generator error or absent credentials they return the fallback
// variant.
type NarrativeGenerator interface {
	Describe(ctx context.Context, s models.Signal, c models.Confluence) Narrative
}

// Notifier delivers messages to an external sink (e.g. chat). Best-effort,
// fire-and-forget from the core's perspective.
type Notifier interface {
	Send(ctx context.Context, msg string) error
}
