package cache

import (
	"errors"
	"fmt"
	"strings"
)

// Key namespaces on the store. Other components (ingestion, dashboards)
// depend on these exact prefixes, do not change without a migration.
const (
	PrefixCustomerJourney     = "customer_journey"
	PrefixConversions         = "conversions"
	PrefixConversionDateIndex = "conversion_index_date"
	PrefixPageviewIPIndex     = "pageview_index_ip"
	PrefixGeoCache            = "geo_cache"
	PrefixProgress            = "attribution_progress"

	// Reverse-index pointer keys are underscore joined, written by the
	// ingestion path.
	ReverseIndexIPPrefix          = "attribution_ip_"
	ReverseIndexSessionPrefix     = "attribution_session_"
	ReverseIndexFingerprintPrefix = "attribution_fp_"
)

const (
	JourneyExpirySecs  = 30 * 24 * 60 * 60
	GeoCacheExpirySecs = 24 * 60 * 60
)

type Key struct {
	// Prefix - Helps better grouping and searching
	// i.e record_type + index_name
	Prefix string
	// Suffix - optional
	Suffix string
}

var (
	ErrorInvalidPrefix = errors.New("invalid key prefix")
	ErrorInvalidKey    = errors.New("invalid cache key")
)

func NewKey(prefix string, suffix string) (*Key, error) {
	if prefix == "" {
		return nil, ErrorInvalidPrefix
	}

	return &Key{Prefix: prefix, Suffix: suffix}, nil
}

func (key *Key) Key() (string, error) {
	if key.Prefix == "" {
		return "", ErrorInvalidPrefix
	}

	if key.Suffix == "" {
		return key.Prefix, nil
	}

	// key: i.e, customer_journey:journey_1689
	return fmt.Sprintf("%s:%s", key.Prefix, key.Suffix), nil
}

// EncodeIP - IPs are used inside key names. IPv6 addresses contain colons
// which collide with the key delimiter, replace with underscores. The
// replacement is a reversible bijection, see DecodeIP.
func EncodeIP(ip string) string {
	return strings.ReplaceAll(ip, ":", "_")
}

func DecodeIP(encoded string) string {
	return strings.ReplaceAll(encoded, "_", ":")
}

func JourneyKey(journeyID string) (*Key, error) {
	return NewKey(PrefixCustomerJourney, journeyID)
}

func ConversionDateIndexKey(date string) (*Key, error) {
	return NewKey(PrefixConversionDateIndex, date)
}

func PageviewIPIndexKey(ip string) (*Key, error) {
	return NewKey(PrefixPageviewIPIndex, EncodeIP(ip))
}

func GeoCacheKey(ip string) (*Key, error) {
	return NewKey(PrefixGeoCache, EncodeIP(ip))
}

func ReverseIndexIPKey(ip string) string {
	return ReverseIndexIPPrefix + EncodeIP(ip)
}

func ReverseIndexSessionKey(sessionID string) string {
	return ReverseIndexSessionPrefix + sessionID
}

func ReverseIndexFingerprintKey(fingerprint string) string {
	return ReverseIndexFingerprintPrefix + fingerprint
}
