package detection

import (
	"context"
	"errors"
	"math"
	"strings"

	"github.com/menta2k/widefit/pkg/client"
	"github.com/menta2k/widefit/pkg/types"
)

// DefaultPrompt asks for the tight box of the main subject
const DefaultPrompt = `You are an image subject locator.

Return JSON only:
{
  "primary": {
    "label": "string",
    "confidence": 0.0,
    "box": {"x": 0.0, "y": 0.0, "w": 0.0, "h": 0.0},
    "cx": 0.0,
    "cy": 0.0
  },
  "description": "short neutral sentence (≤ 20 words)",
  "tags": ["tag1", "tag2", "tag3", "tag4", "tag5"]
}

HARD RULES
- All coordinates are normalized to [0,1] (NOT pixels). x,y is the top-left corner.
- The box must tightly include ALL of the visually dominant subject, including
  limbs, hair, wheels, tails. Prefer people/vehicles/animals; else the most salient object.
- Never shrink the box to keep it centered; report where the subject really is.
- cx, cy is the center of the box.
- Description must be brief and factual. Do not guess real identities.
- Tags: lowercase, concise, no punctuation or duplicates.
- If there is no distinct subject (landscape, texture, pattern), return:
  {
    "primary":{"label":"none","confidence":0.0,"box":{"x":0.0,"y":0.0,"w":0.0,"h":0.0},"cx":0.5,"cy":0.5},
    "description":"scene without a distinct subject",
    "tags":["scene"]
  }
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

var (
	// ErrNoSubject means the model answered that the image has no distinct subject
	ErrNoSubject = errors.New("model found no subject")
	// ErrUnusableAnswer means the model answer could not be turned into a box
	ErrUnusableAnswer = errors.New("unusable model answer")
)

// Detector handles image subject detection using vision models
type Detector struct {
	client        client.VisionClient
	minConfidence float64
}

// NewDetector creates a new detector with a vision client
func NewDetector(client client.VisionClient) *Detector {
	return &Detector{client: client}
}

// WithMinConfidence rejects answers below c
func (d *Detector) WithMinConfidence(c float64) *Detector {
	d.minConfidence = c
	return d
}

// Client returns the underlying vision client
func (d *Detector) Client() client.VisionClient {
	return d.client
}

// DetectSubject analyzes an image and detects the primary subject
func (d *Detector) DetectSubject(ctx context.Context, model, imageB64 string) (*types.AnalysisResult, error) {
	return d.DetectSubjectWithPrompt(ctx, model, imageB64, DefaultPrompt)
}

// DetectSubjectWithPrompt analyzes an image with a custom prompt
func (d *Detector) DetectSubjectWithPrompt(ctx context.Context, model, imageB64, prompt string) (*types.AnalysisResult, error) {
	result, err := d.client.AnalyzeImage(ctx, model, prompt, imageB64)
	if err != nil {
		return nil, err
	}

	result.Primary.Box = normalizeBox(result.Primary.Box)
	result.Tags = normalizeTags(result.Tags)
	return result, nil
}

// SubjectBox validates a detection and converts its box to pixels of a
// width x height image
func (d *Detector) SubjectBox(result *types.AnalysisResult, width, height int) (types.BoundingBox, error) {
	if result == nil || client.IsFallback(result) {
		return types.BoundingBox{}, ErrUnusableAnswer
	}
	if strings.EqualFold(strings.TrimSpace(result.Primary.Label), "none") {
		return types.BoundingBox{}, ErrNoSubject
	}
	if result.Primary.Confidence < d.minConfidence {
		return types.BoundingBox{}, ErrUnusableAnswer
	}

	b := result.Primary.Box
	if b.W <= 0 || b.H <= 0 {
		return types.BoundingBox{}, ErrUnusableAnswer
	}

	// outward rounding, with slack for float noise on exact pixel edges
	const eps = 1e-6
	fw, fh := float64(width), float64(height)
	box := types.BoundingBox{
		X1: int(math.Floor(b.X*fw + eps)),
		Y1: int(math.Floor(b.Y*fh + eps)),
		X2: int(math.Ceil(clamp(b.X+b.W, 0, 1)*fw - eps)),
		Y2: int(math.Ceil(clamp(b.Y+b.H, 0, 1)*fh - eps)),
	}
	if box.Width() <= 0 || box.Height() <= 0 {
		return types.BoundingBox{}, ErrUnusableAnswer
	}
	return box, nil
}

// clamp ensures a value is within the given bounds
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// normalizeBox clamps a normalized box to [0,1]
func normalizeBox(b types.Box) types.Box {
	return types.Box{
		X: clamp(b.X, 0, 1),
		Y: clamp(b.Y, 0, 1),
		W: clamp(b.W, 0, 1),
		H: clamp(b.H, 0, 1),
	}
}

// normalizeTags ensures tags are cleaned and limited to 5 entries
func normalizeTags(tags []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, 5)
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
		if len(out) == 5 {
			break
		}
	}
	return out
}
