package schemas

import "time"

// -- Observation Schemas --

// Rect is an element's bounding box in CSS pixels, relative to the viewport.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// InteractiveElement is one actionable element of the page, addressed by Index.
type InteractiveElement struct {
	Index      int               `json:"index"`                // Position in the snapshot's element list.
	Tag        string            `json:"tag"`                  // Lower-case tag name.
	Attributes map[string]string `json:"attributes,omitempty"` // Key attributes only (id, name, type, href, ...).
	Text       string            `json:"text,omitempty"`       // Visible text, truncated.
	Rect       Rect              `json:"rect"`
}

// Tab describes one open page.
type Tab struct {
	PageID int    `json:"page_id"`
	URL    string `json:"url"`
	Title  string `json:"title"`
	Active bool   `json:"active"`
}

// Snapshot is an observation of the environment captured at the start of a step.
type Snapshot struct {
	URL        string               `json:"url"`
	Title      string               `json:"title"`
	Text       string               `json:"text,omitempty"`       // Readable page text, possibly truncated.
	Screenshot string               `json:"screenshot,omitempty"` // Base64 encoded PNG.
	Elements   []InteractiveElement `json:"elements"`
	Tabs       []Tab                `json:"tabs"`
	Vision     *VisionAnnotations   `json:"vision,omitempty"`
	CapturedAt time.Time            `json:"captured_at"`
}

// -- Vision Schemas --

// BoundingBox is a detector box given as [x1, y1, x2, y2] in screenshot pixels.
type BoundingBox [4]float64

// Detection is one object found in the screenshot.
type Detection struct {
	Class      string      `json:"class"`
	Confidence float64     `json:"confidence"`
	BBox       BoundingBox `json:"bbox"`
}

// TextRegion is one OCR result.
type TextRegion struct {
	Text       string      `json:"text"`
	Confidence float64     `json:"confidence"`
	BBox       BoundingBox `json:"bbox"`
}

// VisionAnnotations is the result of processing one screenshot.
type VisionAnnotations struct {
	Detections  []Detection  `json:"detections"`
	TextRegions []TextRegion `json:"text_regions"`
}
