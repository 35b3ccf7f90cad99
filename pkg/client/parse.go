package client

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/menta2k/widefit/pkg/types"
)

var (
	reBlockComment  = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLineComment   = regexp.MustCompile(`(?m)^\s*//.*$`)
	reInlineComment = regexp.MustCompile(`(?m)\s//[^"\n]*$`)
	reTrailingComma = regexp.MustCompile(`,(\s*[}\]])`)
)

// CenteredBox is the subject box used when a model answer is unusable
var CenteredBox = types.Box{X: 0.25, Y: 0.25, W: 0.5, H: 0.5}

// Fallback returns a low-confidence result labelled with label. Callers
// recognise it through the "fallback" tag.
func Fallback(label, description string, tags ...string) *types.AnalysisResult {
	return &types.AnalysisResult{
		Primary: types.Primary{
			Label:      label,
			Confidence: 0.1,
			Box:        CenteredBox,
			Cx:         0.5,
			Cy:         0.5,
		},
		Description: description,
		Tags:        append(tags, "fallback"),
	}
}

// IsFallback reports whether r was produced by Fallback
func IsFallback(r *types.AnalysisResult) bool {
	for _, t := range r.Tags {
		if t == "fallback" {
			return true
		}
	}
	return false
}

// ParseAnalysisResult parses a model answer. It never fails on malformed
// text; an unusable answer becomes a Fallback result.
func ParseAnalysisResult(raw string) (*types.AnalysisResult, error) {
	raw = SanitizeModelJSON(raw)

	if !strings.HasPrefix(raw, "{") {
		return Fallback("unclear image", "Model returned non-JSON response", "unclear", "non-json"), nil
	}

	var result types.AnalysisResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return Fallback("parse error", "Failed to parse model response", "parse-error"), nil
	}

	if result.Primary.Label == "" && result.Primary.Confidence == 0 {
		if result.Primary.Cx == 0 && result.Primary.Cy == 0 {
			result.Primary.Cx = 0.5
			result.Primary.Cy = 0.5
		}
		if result.Primary.Box.W == 0 && result.Primary.Box.H == 0 {
			result.Primary.Box = CenteredBox
		}
	}
	return &result, nil
}

// SanitizeModelJSON strips code fences, comments and trailing commas and
// keeps only the outermost {...} of a model answer
func SanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.Trim(strings.TrimSpace(raw), "`")

	raw = reBlockComment.ReplaceAllString(raw, "")
	raw = reLineComment.ReplaceAllString(raw, "")
	raw = reInlineComment.ReplaceAllString(raw, "")
	raw = reTrailingComma.ReplaceAllString(raw, "$1")

	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}
