package attribution

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"attribution/model/model"
)

type stubGeoResolver struct {
	records map[string]*model.GeoRecord
}

func (s *stubGeoResolver) Resolve(ip string) *model.GeoRecord {
	if record, exists := s.records[ip]; exists {
		return record
	}
	return model.NewLookupFailedGeoRecord(ip)
}

func geoRecord(ip, city, region, country, isp string) *model.GeoRecord {
	return &model.GeoRecord{IP: ip, City: city, Region: region, Country: country, ISP: isp}
}

func TestScoreExactSessionMatch(t *testing.T) {
	matcher := NewMatcher(DefaultMatcherConfig(), &stubGeoResolver{})

	signals := ConversionSignals{SessionID: "sess_1"}
	pageview := &model.Pageview{SessionID: "sess_1", IPAddress: "1.2.3.4"}

	result := matcher.Score(signals, pageview, MatchHint{})
	assert.True(t, result.IsMatch)
	assert.Equal(t, ConfidenceDefinite, result.Confidence)
	assert.Equal(t, float64(300), result.Score)
	assert.Equal(t, model.MethodExactSession, result.Method)
}

func TestScoreExactFingerprintMatch(t *testing.T) {
	matcher := NewMatcher(DefaultMatcherConfig(), &stubGeoResolver{})

	signals := ConversionSignals{DeviceSignature: "fp_abc"}
	pageview := &model.Pageview{CanvasFingerprint: "fp_abc"}

	result := matcher.Score(signals, pageview, MatchHint{})
	assert.True(t, result.IsMatch)
	assert.Equal(t, ConfidenceDefinite, result.Confidence)
	assert.Equal(t, model.MethodExactFingerprint, result.Method)

	// Empty fingerprints must never match each other.
	result = matcher.Score(ConversionSignals{}, &model.Pageview{}, MatchHint{})
	assert.False(t, result.IsMatch)
}

func TestScoreIPIndexHint(t *testing.T) {
	matcher := NewMatcher(DefaultMatcherConfig(), &stubGeoResolver{})

	result := matcher.Score(ConversionSignals{IPs: []string{"1.2.3.4"}},
		&model.Pageview{IPAddress: "1.2.3.4"},
		MatchHint{ViaIPIndex: true, IndexedIP: "1.2.3.4"})

	assert.True(t, result.IsMatch)
	assert.Equal(t, float64(250), result.Score)
	assert.Equal(t, model.MethodIPIndex, result.Method)
	assert.Equal(t, "1.2.3.4", result.MatchedIP)
}

func TestScoreExactBeatsIPIndex(t *testing.T) {
	matcher := NewMatcher(DefaultMatcherConfig(), &stubGeoResolver{})

	// First rung wins even when the retrieval hint is set.
	result := matcher.Score(ConversionSignals{SessionID: "s1"},
		&model.Pageview{SessionID: "s1"}, MatchHint{ViaIPIndex: true})
	assert.Equal(t, model.MethodExactSession, result.Method)
	assert.Equal(t, float64(300), result.Score)
}

func TestCompareGeoStandardThresholds(t *testing.T) {
	conf := DefaultMatcherConfig()

	// City only: 3 < 4, no match in standard mode.
	a := geoRecord("1.1.1.1", "Austin", "Texas", "US", "Comcast")
	b := geoRecord("2.2.2.2", "Austin", "Nowhere", "CA", "ATT")
	result := CompareGeo(a, b, false, conf)
	assert.False(t, result.IsMatch)
	assert.Equal(t, float64(3), result.Score)

	// City + country: 4, POSSIBLE.
	b = geoRecord("2.2.2.2", "Austin", "Nowhere", "US", "ATT")
	result = CompareGeo(a, b, false, conf)
	assert.True(t, result.IsMatch)
	assert.Equal(t, ConfidencePossible, result.Confidence)

	// City + region: 5, STRONG.
	b = geoRecord("2.2.2.2", "Austin", "Texas", "CA", "ATT")
	result = CompareGeo(a, b, false, conf)
	assert.True(t, result.IsMatch)
	assert.Equal(t, ConfidenceStrong, result.Confidence)

	// City + region + country: 6, DEFINITE.
	b = geoRecord("2.2.2.2", "Austin", "Texas", "US", "ATT")
	result = CompareGeo(a, b, false, conf)
	assert.True(t, result.IsMatch)
	assert.Equal(t, ConfidenceDefinite, result.Confidence)
}

// Strict and standard mode diverge on a city mismatch with region, country
// and ISP matching: standard scores 5 (STRONG), strict refuses.
func TestStrictAndStandardDivergeOnCityMismatch(t *testing.T) {
	conf := DefaultMatcherConfig()
	a := geoRecord("1.1.1.1", "Austin", "Texas", "US", "Comcast")
	b := geoRecord("2.2.2.2", "Dallas", "Texas", "US", "Comcast Cable")

	standard := CompareGeo(a, b, false, conf)
	assert.True(t, standard.IsMatch)
	assert.Equal(t, float64(5), standard.Score)
	assert.Equal(t, ConfidenceStrong, standard.Confidence)

	strict := CompareGeo(a, b, true, conf)
	assert.False(t, strict.IsMatch)
}

// City gate: no city match means no strict match regardless of the other
// fields.
func TestStrictCityGate(t *testing.T) {
	conf := DefaultMatcherConfig()

	for _, fields := range [][3]string{
		{"Texas", "US", "Comcast"},
		{"Texas", "US", ""},
		{"", "", ""},
	} {
		a := geoRecord("1.1.1.1", "Austin", "Texas", "US", "Comcast")
		b := geoRecord("2.2.2.2", "Dallas", fields[0], fields[1], fields[2])
		assert.False(t, CompareGeo(a, b, true, conf).IsMatch)
	}
}

// Monotonicity: every strict match is also a standard match, and strict
// never yields a confidence weaker than POSSIBLE once it matches.
func TestStrictImpliesStandard(t *testing.T) {
	conf := DefaultMatcherConfig()

	boolValues := []bool{false, true}
	for _, cityMatch := range boolValues {
		for _, regionMatch := range boolValues {
			for _, countryMatch := range boolValues {
				for _, ispMatch := range boolValues {
					a := geoRecord("1.1.1.1", "Austin", "Texas", "US", "Comcast")
					b := geoRecord("2.2.2.2", "Dallas", "Oregon", "CA", "ATT")
					if cityMatch {
						b.City = a.City
					}
					if regionMatch {
						b.Region = a.Region
					}
					if countryMatch {
						b.Country = a.Country
					}
					if ispMatch {
						b.ISP = a.ISP
					}

					strict := CompareGeo(a, b, true, conf)
					standard := CompareGeo(a, b, false, conf)

					if strict.IsMatch {
						assert.True(t, standard.IsMatch,
							"strict match must imply standard match: %+v", b)
						assert.Contains(t, []string{ConfidencePossible,
							ConfidenceStrong, ConfidenceDefinite}, strict.Confidence)
					}
				}
			}
		}
	}
}

func TestCompareGeoLookupFailedSentinel(t *testing.T) {
	conf := DefaultMatcherConfig()
	good := geoRecord("1.1.1.1", "Austin", "Texas", "US", "Comcast")
	failed := model.NewLookupFailedGeoRecord("2.2.2.2")

	for _, mode := range []bool{false, true} {
		result := CompareGeo(good, failed, mode, conf)
		assert.False(t, result.IsMatch)
		assert.Equal(t, ConfidenceLookupFailed, result.Confidence)

		result = CompareGeo(failed, good, mode, conf)
		assert.False(t, result.IsMatch)
		assert.Equal(t, ConfidenceLookupFailed, result.Confidence)
	}

	// Two failed lookups must not match each other on equal sentinels.
	result := CompareGeo(model.NewLookupFailedGeoRecord("1.1.1.1"), failed, false, conf)
	assert.False(t, result.IsMatch)
}

func TestScoreGeoPicksBestConversionIP(t *testing.T) {
	resolver := &stubGeoResolver{records: map[string]*model.GeoRecord{
		"9.9.9.9": geoRecord("9.9.9.9", "Reykjavik", "Capital", "IS", "Siminn"),
		"1.2.3.4": geoRecord("1.2.3.4", "Austin", "Texas", "US", "Comcast"),
		"5.6.7.8": geoRecord("5.6.7.8", "Austin", "Texas", "US", "Comcast"),
	}}
	matcher := NewMatcher(DefaultMatcherConfig(), resolver)

	signals := ConversionSignals{IPs: []string{"9.9.9.9", "5.6.7.8"}}
	pageview := &model.Pageview{IPAddress: "1.2.3.4"}

	result := matcher.Score(signals, pageview, MatchHint{})
	assert.True(t, result.IsMatch)
	assert.Equal(t, "5.6.7.8", result.MatchedIP)
	assert.Equal(t, ConfidenceDefinite, result.Confidence)
}

func TestScoreGeoAllLookupsFailed(t *testing.T) {
	matcher := NewMatcher(DefaultMatcherConfig(), &stubGeoResolver{})

	result := matcher.Score(ConversionSignals{IPs: []string{"1.2.3.4"}},
		&model.Pageview{IPAddress: "5.6.7.8"}, MatchHint{})
	assert.False(t, result.IsMatch)
	assert.Equal(t, ConfidenceLookupFailed, result.Confidence)
}

func TestISPMatches(t *testing.T) {
	// Substring containment after normalization, both directions.
	assert.True(t, ISPMatches("Comcast Cable Communications", "comcast"))
	assert.True(t, ISPMatches("comcast", "Comcast Cable Communications"))
	assert.True(t, ISPMatches("A.T.&T. Services", "att services"))

	// ASN equality wins over name comparison.
	assert.True(t, ISPMatches("AS15169 Google LLC", "AS15169"))
	assert.False(t, ISPMatches("AS15169 Google LLC", "AS714 Apple Inc"))

	// Unknown and empty never match, even against themselves.
	assert.False(t, ISPMatches("Unknown", "Unknown"))
	assert.False(t, ISPMatches("", ""))
	assert.False(t, ISPMatches("Comcast", ""))
	assert.False(t, ISPMatches("LOOKUP_FAILED", "LOOKUP_FAILED"))
}
