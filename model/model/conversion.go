package model

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Conversion - One purchase record. Immutable once recorded except for the
// attribution annotation fields the resolver writes back.
type Conversion struct {
	Timestamp       int64   `json:"timestamp"`
	Email           string  `json:"email"`
	OrderID         string  `json:"order_id"`
	OrderTotal      float64 `json:"order_total"`
	SessionID       string  `json:"session_id,omitempty"`
	DeviceSignature string  `json:"device_signature,omitempty"`
	ScreenValue     string  `json:"screen_value,omitempty"`
	GPUSignature    string  `json:"gpu_signature,omitempty"`

	// IP fields as recorded. Never read these directly for matching, use
	// ExtractIPs which unions and cleans them.
	PrimaryIP    string   `json:"primary_ip,omitempty"`
	ConversionIP string   `json:"conversion_ip,omitempty"`
	PageviewIP   string   `json:"pageview_ip,omitempty"`
	IPAddresses  []string `json:"ip_addresses,omitempty"`

	// Attribution annotations, written back by the resolver.
	AttributionFound       bool                    `json:"attribution_found"`
	AttributionMethod      string                  `json:"attribution_method,omitempty"`
	LandingPage            string                  `json:"landing_page,omitempty"`
	Source                 string                  `json:"source,omitempty"`
	Medium                 string                  `json:"medium,omitempty"`
	Campaign               string                  `json:"campaign,omitempty"`
	Content                string                  `json:"content,omitempty"`
	Term                   string                  `json:"term,omitempty"`
	AttributionImprovement *AttributionImprovement `json:"attribution_improvement,omitempty"`
}

// AttributionImprovement - Audit of how the annotation was produced.
type AttributionImprovement struct {
	Method     string  `json:"method"`
	Confidence string  `json:"confidence"`
	Score      float64 `json:"score"`
	MatchedIP  string  `json:"matched_ip,omitempty"`
	Timestamp  int64   `json:"timestamp"`
}

// ConversionDateIndex - Value of conversion_index_date:<YYYY-MM-DD>.
type ConversionDateIndex struct {
	Conversions []json.RawMessage `json:"conversions"`
}

// Ordered fallback chains for field names that drifted across recording
// script versions. First non-empty wins.
var orderIDFields = []string{"order_id", "conversion_order_id", "order_number", "oid"}
var timestampFields = []string{"timestamp", "conversion_timestamp", "ts"}
var emailFields = []string{"email", "customer_email"}
var sessionFields = []string{"session_id", "sid"}
var ipStringFields = []string{"primary_ip", "conversion_ip", "pageview_ip", "ip_address", "ip", "cip", "pip"}
var ipArrayFields = []string{"ip_addresses", "ips"}

// DecodeConversion - Normalizes a raw record of any historical shape into
// one typed Conversion. Downstream matching code never sees the variants.
func DecodeConversion(raw []byte) (*Conversion, error) {
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, errors.Wrap(err, "unparseable conversion record")
	}

	conversion := Conversion{
		OrderID:   firstNonEmptyString(fields, orderIDFields),
		Email:     firstNonEmptyString(fields, emailFields),
		SessionID: firstNonEmptyString(fields, sessionFields),
	}

	conversion.Timestamp = firstTimestamp(fields, timestampFields)
	if conversion.Timestamp == 0 {
		return nil, errors.New("conversion record missing timestamp")
	}

	if total, ok := fields["order_total"].(float64); ok {
		conversion.OrderTotal = total
	}
	if v, ok := fields["device_signature"].(string); ok {
		conversion.DeviceSignature = v
	}
	if v, ok := fields["screen_value"].(string); ok {
		conversion.ScreenValue = v
	}
	if v, ok := fields["gpu_signature"].(string); ok {
		conversion.GPUSignature = v
	}

	conversion.PrimaryIP = stringField(fields, "primary_ip")
	conversion.ConversionIP = stringField(fields, "conversion_ip")
	conversion.PageviewIP = stringField(fields, "pageview_ip")

	// Fold every other historical IP shape into the array field so nothing
	// recorded is lost by normalization.
	extra := make([]string, 0)
	for _, name := range ipStringFields[3:] {
		if v := stringField(fields, name); v != "" {
			extra = append(extra, v)
		}
	}
	for _, name := range ipArrayFields {
		if list, ok := fields[name].([]interface{}); ok {
			for _, item := range list {
				if s, ok := item.(string); ok && s != "" {
					extra = append(extra, s)
				}
			}
		}
	}
	conversion.IPAddresses = extra

	return &conversion, nil
}

// ExtractIPs - Union of all recorded IP fields: splits comma joined values,
// trims, drops empties and the literal "unknown", dedupes preserving order.
// Idempotent: re-extracting its own output joined by commas yields the same
// set.
func (c *Conversion) ExtractIPs() []string {
	candidates := make([]string, 0, 4+len(c.IPAddresses))
	candidates = append(candidates, c.PrimaryIP, c.ConversionIP, c.PageviewIP)
	candidates = append(candidates, c.IPAddresses...)

	seen := make(map[string]struct{})
	ips := make([]string, 0, len(candidates))
	for _, candidate := range candidates {
		for _, part := range strings.Split(candidate, ",") {
			ip := strings.TrimSpace(part)
			if ip == "" || strings.EqualFold(ip, "unknown") {
				continue
			}
			if _, exists := seen[ip]; exists {
				continue
			}
			seen[ip] = struct{}{}
			ips = append(ips, ip)
		}
	}
	return ips
}

// HasExactSignals - True when the conversion carries at least one
// high-confidence identity key.
func (c *Conversion) HasExactSignals() bool {
	return c.SessionID != "" || c.DeviceSignature != "" || c.GPUSignature != ""
}

func firstNonEmptyString(fields map[string]interface{}, names []string) string {
	for _, name := range names {
		if v := stringField(fields, name); v != "" {
			return v
		}
	}
	return ""
}

func firstTimestamp(fields map[string]interface{}, names []string) int64 {
	for _, name := range names {
		switch v := fields[name].(type) {
		case float64:
			if v > 0 {
				return int64(v)
			}
		case string:
			var ts int64
			if _, err := fmt.Sscanf(v, "%d", &ts); err == nil && ts > 0 {
				return ts
			}
		}
	}
	return 0
}

func stringField(fields map[string]interface{}, name string) string {
	if v, ok := fields[name].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}
