package models

import (
	"encoding/json"
	"fmt"
)

// Variant classifies a target URL and selects the extraction path.
type Variant int

const (
	// VariantGeneric is any content page: network-idle load, End-key
	// pagination and a single whole-page tier.
	VariantGeneric Variant = iota

	// VariantMapReview is the map-review page: DOM-ready load, UI gates,
	// container scrolling and the three-tier chain.
	VariantMapReview
)

func (v Variant) String() string {
	switch v {
	case VariantMapReview:
		return "map_review"
	default:
		return "generic"
	}
}

func (v Variant) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.String())
}

func (v *Variant) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	switch s {
	case "generic", "":
		*v = VariantGeneric
	case "map_review":
		*v = VariantMapReview
	default:
		return fmt.Errorf("unknown variant %q", s)
	}
	return nil
}

// Result status values.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// ExtractionResult is the terminal value of one extraction call.
// Status is StatusSuccess iff Text is non-empty.
type ExtractionResult struct {
	URL    string `json:"url"`
	Text   string `json:"text"`
	Status string `json:"status"`

	// Error is set for fatal failures and caught panics. An empty
	// extraction fails without a message.
	Error string `json:"error,omitempty"`

	// ErrorCode is the machine-readable code behind Error.
	ErrorCode string `json:"error_code,omitempty"`

	// Platform is the classified variant of URL.
	Platform Variant `json:"platform"`

	// Tier names the tier whose result was accepted; empty when none was.
	Tier string `json:"tier,omitempty"`

	// ResolvedURL is the expanded target of a shortlink, when resolved.
	ResolvedURL string `json:"resolved_url,omitempty"`

	Metadata Metadata   `json:"metadata"`
	Timing   TimingInfo `json:"timing"`

	// CacheStatus is "hit", "miss", or empty when caching was not requested.
	CacheStatus string `json:"cache_status,omitempty"`
}

// Succeeded reports whether the result carries text.
func (r *ExtractionResult) Succeeded() bool {
	return r != nil && r.Status == StatusSuccess
}

// Metadata holds page-level information gathered alongside the text.
type Metadata struct {
	Title    string `json:"title,omitempty"`
	SiteName string `json:"site_name,omitempty"`
	Language string `json:"language,omitempty"`
}

// TimingInfo breaks down the time spent in each phase.
type TimingInfo struct {
	TotalMs      int64 `json:"total_ms"`
	NavigationMs int64 `json:"navigation_ms"`
	InteractMs   int64 `json:"interact_ms"` // gates + pagination
	ExtractMs    int64 `json:"extract_ms"`
}
