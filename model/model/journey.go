package model

// Reconstruction methods stamped on journeys.
const (
	ReconstructionConversionOnly = "conversion_only"
	ReconstructionMultiTouch     = "multi_touch"
	ReconstructionRecovery       = "recovery"
)

// Attribution methods stamped on touchpoints and conversions.
const (
	MethodExactSession     = "exact_session_match"
	MethodExactFingerprint = "exact_fingerprint_match"
	MethodIPIndex          = "ip_index_match"
	MethodGeoCorrelation   = "geo_correlation"
	MethodConversionGround = "conversion_ground_truth"
)

// Touchpoint - One interaction on the customer's timeline: a pageview or
// the conversion itself.
type Touchpoint struct {
	Timestamp         int64  `json:"timestamp"`
	IPAddress         string `json:"ip_address,omitempty"`
	SessionID         string `json:"session_id,omitempty"`
	CanvasFingerprint string `json:"canvas_fingerprint,omitempty"`
	LandingPage       string `json:"landing_page,omitempty"`
	Source            string `json:"source,omitempty"`
	Medium            string `json:"medium,omitempty"`
	Campaign          string `json:"campaign,omitempty"`
	Content           string `json:"content,omitempty"`
	Term              string `json:"term,omitempty"`
	ReferrerURL       string `json:"referrer_url,omitempty"`
	DeviceType        string `json:"device_type,omitempty"`

	TouchpointPosition int     `json:"touchpoint_position"`
	IsFirstTouchpoint  bool    `json:"is_first_touchpoint"`
	IsLastTouchpoint   bool    `json:"is_last_touchpoint"`
	IsConversion       bool    `json:"is_conversion,omitempty"`
	AttributionMethod  string  `json:"attribution_method"`
	Confidence         float64 `json:"confidence"`
	ConfidenceTier     string  `json:"confidence_tier,omitempty"`

	// Provenance.
	MatchedIP      string `json:"matched_ip,omitempty"`
	RecoveryMethod string `json:"recovery_method,omitempty"`
}

// RemovedAttribution - Audit of a strict-mode removal. The removed values
// are preserved here, never silently discarded.
type RemovedAttribution struct {
	LandingPage string `json:"landing_page,omitempty"`
	Source      string `json:"source,omitempty"`
	Medium      string `json:"medium,omitempty"`
	Campaign    string `json:"campaign,omitempty"`
	Content     string `json:"content,omitempty"`
	Term        string `json:"term,omitempty"`
	Method      string `json:"method,omitempty"`
	RemovedAt   int64  `json:"removed_at"`
	Reason      string `json:"reason"`
}

// Journey - Ordered touchpoint sequence ending in one conversion.
// conversion_order_id is the natural key: at most one current journey per
// order id. Every write is a full-record replace.
type Journey struct {
	JourneyID           string  `json:"journey_id"`
	CustomerEmail       string  `json:"customer_email"`
	ConversionOrderID   string  `json:"conversion_order_id"`
	ConversionTimestamp int64   `json:"conversion_timestamp"`
	ConversionValue     float64 `json:"conversion_value"`

	JourneyStart             int64    `json:"journey_start"`
	JourneySpanHours         float64  `json:"journey_span_hours"`
	TotalTouchpoints         int      `json:"total_touchpoints"`
	UniqueSessions           int      `json:"unique_sessions"`
	UniqueDeviceFingerprints int      `json:"unique_device_fingerprints"`
	UniqueSources            []string `json:"unique_sources"`
	CrossSessionJourney      bool     `json:"cross_session_journey"`
	CrossDeviceJourney       bool     `json:"cross_device_journey"`
	FirstClickSource         string   `json:"first_click_source,omitempty"`
	LastClickSource          string   `json:"last_click_source,omitempty"`
	AttributionConfidenceAvg float64  `json:"attribution_confidence_avg"`

	Touchpoints []Touchpoint `json:"touchpoints"`

	ReconstructionMethod string `json:"reconstruction_method"`
	CreatedAt            int64  `json:"created_at"`

	// Recovery stamps. Gate reconciliation passes from repeating work.
	RecoveryAttempted  bool                `json:"recovery_attempted"`
	RecoveryTimestamp  int64               `json:"recovery_timestamp,omitempty"`
	RecoveryMethod     string              `json:"recovery_method,omitempty"`
	RecoveredPageviews int                 `json:"recovered_pageviews,omitempty"`
	RemovedAttribution *RemovedAttribution `json:"removed_attribution,omitempty"`
}

// IsConversionOnly - True when no pageview was ever matched.
func (j *Journey) IsConversionOnly() bool {
	return j.TotalTouchpoints <= 1
}
