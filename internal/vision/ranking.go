package vision

import (
	"sort"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
)

// Caps applied when annotations are rendered into a prompt.
const (
	MaxPromptDetections  = 10
	MaxPromptTextRegions = 15
)

// TopDetections returns up to n detections ordered by descending confidence.
// Ties keep their original order. The input is not modified.
func TopDetections(detections []schemas.Detection, n int) []schemas.Detection {
	if n <= 0 || len(detections) == 0 {
		return nil
	}
	ranked := append([]schemas.Detection(nil), detections...)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Confidence > ranked[j].Confidence })
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// TopTextRegions returns up to n OCR regions ordered by descending confidence.
// Ties keep their original order. The input is not modified.
func TopTextRegions(regions []schemas.TextRegion, n int) []schemas.TextRegion {
	if n <= 0 || len(regions) == 0 {
		return nil
	}
	ranked := append([]schemas.TextRegion(nil), regions...)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Confidence > ranked[j].Confidence })
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}
