package enums

import "strings"

type FeatureType string

const (
	FeatureGlowAnalysis  FeatureType = "glow_analysis"
	FeatureStyleAnalysis FeatureType = "style_analysis"
)

// Features lists every metered feature in a stable order.
var Features = []FeatureType{FeatureGlowAnalysis, FeatureStyleAnalysis}

func ParseFeatureType(raw string) (FeatureType, bool) {
	switch FeatureType(strings.ToLower(strings.TrimSpace(raw))) {
	case FeatureGlowAnalysis, "glow":
		return FeatureGlowAnalysis, true
	case FeatureStyleAnalysis, "style":
		return FeatureStyleAnalysis, true
	default:
		return "", false
	}
}
