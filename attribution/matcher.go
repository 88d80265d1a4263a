package attribution

import (
	"regexp"
	"strings"

	"attribution/geo"
	"attribution/model/model"
)

// Confidence tiers, strongest first.
const (
	ConfidenceDefinite     = "DEFINITE"
	ConfidenceStrong       = "STRONG"
	ConfidencePossible     = "POSSIBLE"
	ConfidenceNone         = "NONE"
	ConfidenceLookupFailed = "LOOKUP_FAILED"
)

// MatcherConfig - Score constants are tunable, they were iterated on
// empirically and differ between environments.
type MatcherConfig struct {
	ScoreExactMatch   float64
	ScoreIPIndexMatch float64

	GeoCityWeight    int
	GeoRegionWeight  int
	GeoCountryWeight int
	GeoISPWeight     int

	// Minimum geo score for any standard-mode match (POSSIBLE).
	GeoMatchThreshold    int
	GeoStrongThreshold   int
	GeoDefiniteThreshold int
}

func DefaultMatcherConfig() MatcherConfig {
	return MatcherConfig{
		ScoreExactMatch:      300,
		ScoreIPIndexMatch:    250,
		GeoCityWeight:        3,
		GeoRegionWeight:      2,
		GeoCountryWeight:     1,
		GeoISPWeight:         2,
		GeoMatchThreshold:    4,
		GeoStrongThreshold:   5,
		GeoDefiniteThreshold: 6,
	}
}

// ConversionSignals - Identity signals extracted once from a conversion.
type ConversionSignals struct {
	SessionID       string
	DeviceSignature string
	GPUSignature    string
	ScreenValue     string
	IPs             []string
}

func SignalsFromConversion(c *model.Conversion) ConversionSignals {
	return ConversionSignals{
		SessionID:       c.SessionID,
		DeviceSignature: c.DeviceSignature,
		GPUSignature:    c.GPUSignature,
		ScreenValue:     c.ScreenValue,
		IPs:             c.ExtractIPs(),
	}
}

type MatchResult struct {
	IsMatch    bool
	Confidence string
	Score      float64
	Method     string
	MatchedIP  string
}

// MatchHint - Retrieval-path context the resolver knows and the matcher
// does not: whether the candidate came from a direct reverse-index pointer.
type MatchHint struct {
	ViaIPIndex bool
	IndexedIP  string
}

// Matcher - Scores one conversion/pageview pair. The confidence ladder is
// evaluated in priority order, first rung wins independent of the geo
// score: exact identity key, then reverse-index hit, then geo comparison.
type Matcher struct {
	conf   MatcherConfig
	geo    geo.Resolver
	strict bool
}

func NewMatcher(conf MatcherConfig, resolver geo.Resolver) *Matcher {
	return &Matcher{conf: conf, geo: resolver}
}

// NewStrictMatcher - Strict mode is used by the reprocessing pass that
// removes low quality attributions: city equality is a precondition for any
// geo match.
func NewStrictMatcher(conf MatcherConfig, resolver geo.Resolver) *Matcher {
	return &Matcher{conf: conf, geo: resolver, strict: true}
}

func (m *Matcher) IsStrict() bool {
	return m.strict
}

func (m *Matcher) Config() MatcherConfig {
	return m.conf
}

func (m *Matcher) Score(signals ConversionSignals, pageview *model.Pageview, hint MatchHint) MatchResult {
	if signals.SessionID != "" && signals.SessionID == pageview.SessionID {
		return MatchResult{
			IsMatch:    true,
			Confidence: ConfidenceDefinite,
			Score:      m.conf.ScoreExactMatch,
			Method:     model.MethodExactSession,
			MatchedIP:  pageview.IPAddress,
		}
	}

	if fingerprintEquals(signals.DeviceSignature, pageview.CanvasFingerprint) ||
		fingerprintEquals(signals.GPUSignature, pageview.GPUSignature) {
		return MatchResult{
			IsMatch:    true,
			Confidence: ConfidenceDefinite,
			Score:      m.conf.ScoreExactMatch,
			Method:     model.MethodExactFingerprint,
			MatchedIP:  pageview.IPAddress,
		}
	}

	if hint.ViaIPIndex {
		matchedIP := hint.IndexedIP
		if matchedIP == "" {
			matchedIP = pageview.IPAddress
		}
		return MatchResult{
			IsMatch:    true,
			Confidence: ConfidenceStrong,
			Score:      m.conf.ScoreIPIndexMatch,
			Method:     model.MethodIPIndex,
			MatchedIP:  matchedIP,
		}
	}

	return m.scoreGeo(signals, pageview)
}

// scoreGeo - Compares the geo of each of the conversion's IPs against the
// pageview's IP geo and keeps the best result. A failed lookup on either
// side degrades that one comparison, not the whole evaluation.
func (m *Matcher) scoreGeo(signals ConversionSignals, pageview *model.Pageview) MatchResult {
	best := MatchResult{Confidence: ConfidenceNone, Method: model.MethodGeoCorrelation}
	if len(signals.IPs) == 0 || pageview.IPAddress == "" {
		return best
	}

	pageviewGeo := m.geo.Resolve(pageview.IPAddress)
	sawLookupFailure := false

	for _, ip := range signals.IPs {
		conversionGeo := m.geo.Resolve(ip)
		result := CompareGeo(conversionGeo, pageviewGeo, m.strict, m.conf)
		if result.Confidence == ConfidenceLookupFailed {
			sawLookupFailure = true
			continue
		}

		if result.Score > best.Score || (best.Confidence == ConfidenceNone && result.IsMatch) {
			best = result
			best.MatchedIP = ip
		}
	}

	if !best.IsMatch && sawLookupFailure && best.Score == 0 {
		best.Confidence = ConfidenceLookupFailed
	}
	return best
}

// CompareGeo - Pure geo scoring: 3x city + 2x region + 1x country + 2x ISP
// in standard mode. Strict mode gates on city: no city match means no match
// regardless of the other fields; once city matches the weakest attainable
// tier is POSSIBLE.
func CompareGeo(conversionGeo, pageviewGeo *model.GeoRecord, strict bool, conf MatcherConfig) MatchResult {
	result := MatchResult{Confidence: ConfidenceNone, Method: model.MethodGeoCorrelation}

	if conversionGeo.IsLookupFailed() || pageviewGeo.IsLookupFailed() {
		result.Confidence = ConfidenceLookupFailed
		return result
	}

	cityMatch := fieldEquals(conversionGeo.City, pageviewGeo.City)
	regionMatch := fieldEquals(conversionGeo.Region, pageviewGeo.Region)
	countryMatch := fieldEquals(conversionGeo.Country, pageviewGeo.Country)
	ispMatch := ISPMatches(conversionGeo.ISP, pageviewGeo.ISP)

	if strict && !cityMatch {
		return result
	}

	score := 0
	if cityMatch {
		score += conf.GeoCityWeight
	}
	if regionMatch {
		score += conf.GeoRegionWeight
	}
	if countryMatch {
		score += conf.GeoCountryWeight
	}
	if ispMatch {
		score += conf.GeoISPWeight
	}

	result.Score = float64(score)

	// Strict mode differs only by the city gate above; the acceptance
	// threshold is shared so a strict match is always a standard match.
	result.IsMatch = score >= conf.GeoMatchThreshold

	if !result.IsMatch {
		return result
	}

	switch {
	case score >= conf.GeoDefiniteThreshold:
		result.Confidence = ConfidenceDefinite
	case score >= conf.GeoStrongThreshold:
		result.Confidence = ConfidenceStrong
	default:
		result.Confidence = ConfidencePossible
	}
	return result
}

func fieldEquals(a, b string) bool {
	if a == "" || b == "" || a == model.LookupFailed || b == model.LookupFailed {
		return false
	}
	return strings.EqualFold(a, b)
}

func fingerprintEquals(a, b string) bool {
	return a != "" && a == b
}

var asnPattern = regexp.MustCompile(`AS(\d+)`)
var ispPunctuation = regexp.MustCompile(`[^a-z0-9]+`)

// ISPMatches - Case and punctuation normalized substring containment in
// either direction, or equal AS numbers. "Unknown" values never match.
func ISPMatches(a, b string) bool {
	if a == "" || b == "" || a == model.UnknownISP || b == model.UnknownISP ||
		a == model.LookupFailed || b == model.LookupFailed {
		return false
	}

	if asnA := asnPattern.FindStringSubmatch(a); asnA != nil {
		if asnB := asnPattern.FindStringSubmatch(b); asnB != nil {
			return asnA[1] == asnB[1]
		}
	}

	normA := normalizeISPName(a)
	normB := normalizeISPName(b)
	if normA == "" || normB == "" {
		return false
	}
	return strings.Contains(normA, normB) || strings.Contains(normB, normA)
}

func normalizeISPName(name string) string {
	return ispPunctuation.ReplaceAllString(strings.ToLower(name), "")
}
