package model

// LookupFailed - Sentinel for a failed geo lookup. Callers must treat it as
// "match impossible", never as a wildcard.
const LookupFailed = "LOOKUP_FAILED"

const UnknownISP = "Unknown"

type GeoRecord struct {
	IP          string `json:"ip"`
	City        string `json:"city"`
	Region      string `json:"region"`
	Country     string `json:"country"`
	ISP         string `json:"isp"`
	Coordinates string `json:"coordinates,omitempty"`
	Timezone    string `json:"timezone,omitempty"`
}

// NewLookupFailedGeoRecord - Every descriptive field carries the sentinel so
// a partially populated failure can never accidentally match.
func NewLookupFailedGeoRecord(ip string) *GeoRecord {
	return &GeoRecord{
		IP:      ip,
		City:    LookupFailed,
		Region:  LookupFailed,
		Country: LookupFailed,
		ISP:     LookupFailed,
	}
}

func (g *GeoRecord) IsLookupFailed() bool {
	return g == nil || g.City == LookupFailed || g.Region == LookupFailed ||
		g.Country == LookupFailed
}
