package attribution

import (
	"encoding/json"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"attribution/cache"
	cacheRedis "attribution/cache/redis"
	"attribution/model/model"
)

// GetPageviewsByIP - Reads the pre-grouped pageview index for one IP. A
// missing index is an empty result, not an error.
func GetPageviewsByIP(ip string) ([]model.Pageview, error) {
	key, err := cache.PageviewIPIndexKey(ip)
	if err != nil {
		return nil, err
	}

	value, found, err := cacheRedis.GetIfExists(key)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read pageview ip index")
	}
	if !found {
		return nil, nil
	}

	var index model.PageviewIPIndex
	if err := json.Unmarshal([]byte(value), &index); err != nil {
		return nil, errors.Wrap(err, "malformed pageview ip index")
	}
	return index.Pageviews, nil
}

// getPointerPageview - Follows a reverse-index pointer key to the main
// pageview record it references.
func getPointerPageview(pointerKey string) (*model.Pageview, bool) {
	recordKey, found, err := cacheRedis.GetString(pointerKey)
	if err != nil || !found || recordKey == "" {
		return nil, false
	}

	value, found, err := cacheRedis.GetString(recordKey)
	if err != nil || !found {
		return nil, false
	}

	var pageview model.Pageview
	if err := json.Unmarshal([]byte(value), &pageview); err != nil {
		log.WithError(err).WithField("key", recordKey).Warn("Malformed pageview record, skipping")
		return nil, false
	}
	return &pageview, true
}

// FetchCandidates - Both retrieval paths the store supports: the per-IP
// pageview index and the exact-signal reverse-index pointers. There are no
// range queries, so this union is the entire candidate universe. Returns
// the deduped candidates and the count of records skipped as malformed.
func FetchCandidates(conversion *model.Conversion) ([]CandidatePageview, int) {
	candidates := make([]CandidatePageview, 0)
	skipped := 0

	for _, ip := range conversion.ExtractIPs() {
		pageviews, err := GetPageviewsByIP(ip)
		if err != nil {
			log.WithError(err).WithField("ip", ip).Warn("Skipping pageview index for ip")
			skipped++
			continue
		}
		for i := range pageviews {
			candidates = append(candidates, CandidatePageview{Pageview: pageviews[i]})
		}

		if pageview, found := getPointerPageview(cache.ReverseIndexIPKey(ip)); found {
			candidates = append(candidates, CandidatePageview{
				Pageview: *pageview,
				Hint:     MatchHint{ViaIPIndex: true, IndexedIP: ip},
			})
		}
	}

	if conversion.SessionID != "" {
		if pageview, found := getPointerPageview(cache.ReverseIndexSessionKey(conversion.SessionID)); found {
			candidates = append(candidates, CandidatePageview{Pageview: *pageview})
		}
	}
	for _, fingerprint := range []string{conversion.DeviceSignature, conversion.GPUSignature} {
		if fingerprint == "" {
			continue
		}
		if pageview, found := getPointerPageview(cache.ReverseIndexFingerprintKey(fingerprint)); found {
			candidates = append(candidates, CandidatePageview{Pageview: *pageview})
		}
	}

	return DedupeCandidates(candidates), skipped
}

// GetConversionsForDate - Reads the pre-grouped conversion index for a day
// and normalizes each embedded record. Malformed records are skipped and
// counted, never propagated.
func GetConversionsForDate(date string) ([]*model.Conversion, int, error) {
	key, err := cache.ConversionDateIndexKey(date)
	if err != nil {
		return nil, 0, err
	}

	value, found, err := cacheRedis.GetIfExists(key)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to read conversion date index")
	}
	if !found {
		return nil, 0, nil
	}

	var index model.ConversionDateIndex
	if err := json.Unmarshal([]byte(value), &index); err != nil {
		return nil, 0, errors.Wrap(err, "malformed conversion date index")
	}

	conversions := make([]*model.Conversion, 0, len(index.Conversions))
	skipped := 0
	for _, raw := range index.Conversions {
		conversion, err := model.DecodeConversion(raw)
		if err != nil {
			log.WithError(err).WithField("date", date).Warn("Skipping malformed conversion record")
			skipped++
			continue
		}
		conversions = append(conversions, conversion)
	}
	return conversions, skipped, nil
}

// WriteJourney - Always a full-record overwrite with the journey TTL
// refreshed. Partial field patches are unsafe under concurrent writers.
func WriteJourney(journey *model.Journey) error {
	key, err := cache.JourneyKey(journey.JourneyID)
	if err != nil {
		return err
	}

	value, err := json.Marshal(journey)
	if err != nil {
		return errors.Wrap(err, "failed to marshal journey")
	}

	return cacheRedis.Set(key, string(value), cache.JourneyExpirySecs)
}

func GetJourney(journeyID string) (*model.Journey, bool, error) {
	key, err := cache.JourneyKey(journeyID)
	if err != nil {
		return nil, false, err
	}

	value, found, err := cacheRedis.GetIfExists(key)
	if err != nil || !found {
		return nil, found, err
	}

	var journey model.Journey
	if err := json.Unmarshal([]byte(value), &journey); err != nil {
		return nil, true, errors.Wrap(err, "malformed journey record")
	}
	return &journey, true, nil
}

// GetJourneyByStoreKey - Used by SCAN based maintenance jobs which see raw
// key strings.
func GetJourneyByStoreKey(rawKey string) (*model.Journey, bool, error) {
	value, found, err := cacheRedis.GetString(rawKey)
	if err != nil || !found {
		return nil, found, err
	}

	var journey model.Journey
	if err := json.Unmarshal([]byte(value), &journey); err != nil {
		return nil, true, errors.Wrap(err, "malformed journey record")
	}
	return &journey, true, nil
}

// WriteConversion - Full-record overwrite of the raw conversion under its
// order id. Only annotation fields are ever changed by this package.
func WriteConversion(conversion *model.Conversion) error {
	key, err := cache.NewKey(cache.PrefixConversions, conversion.OrderID)
	if err != nil {
		return err
	}

	value, err := json.Marshal(conversion)
	if err != nil {
		return errors.Wrap(err, "failed to marshal conversion")
	}

	return cacheRedis.Set(key, string(value), 0)
}
