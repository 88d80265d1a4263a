package geo

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	lru "github.com/hashicorp/golang-lru"
	log "github.com/sirupsen/logrus"

	"attribution/cache"
	cacheRedis "attribution/cache/redis"
	C "attribution/config"
	"attribution/model/model"
)

// Resolver - Geo lookup boundary. The matcher depends on this interface so
// tests can stub lookups.
type Resolver interface {
	Resolve(ip string) *model.GeoRecord
}

const inMemoryCacheSize = 4096

// CachedResolver - Wraps the external IP geolocation provider with a
// 24 hour cache entry per IP. Lookup order: in-process LRU, then the store,
// then the provider. Entries are immutable once written within their TTL,
// so concurrent writers of the same IP race harmlessly to the same value.
type CachedResolver struct {
	conf   C.GeoServiceConf
	client *http.Client
	memory *lru.Cache
}

func NewCachedResolver(conf C.GeoServiceConf) (*CachedResolver, error) {
	memory, err := lru.New(inMemoryCacheSize)
	if err != nil {
		return nil, err
	}

	timeout := time.Duration(conf.TimeoutInSecs) * time.Second
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	return &CachedResolver{
		conf:   conf,
		client: &http.Client{Timeout: timeout},
		memory: memory,
	}, nil
}

// providerResponse - Fields consumed from the provider. Org naming moved
// across provider plans, hence the best-of chain in normalizeISP.
type providerResponse struct {
	IP       string `json:"ip"`
	City     string `json:"city"`
	Region   string `json:"region"`
	Country  string `json:"country"`
	Org      string `json:"org"`
	Loc      string `json:"loc"`
	Timezone string `json:"timezone"`
	Company  struct {
		Name string `json:"name"`
	} `json:"company"`
	ASN struct {
		Name string `json:"name"`
	} `json:"asn"`
	Carrier struct {
		Name string `json:"name"`
	} `json:"carrier"`
}

func normalizeISP(resp *providerResponse) string {
	for _, name := range []string{resp.Company.Name, resp.ASN.Name, resp.Org, resp.Carrier.Name} {
		if name != "" {
			return name
		}
	}
	return model.UnknownISP
}

// Resolve - Never fails hard. Any provider or cache error degrades to the
// LOOKUP_FAILED sentinel record.
func (r *CachedResolver) Resolve(ip string) *model.GeoRecord {
	if ip == "" {
		return model.NewLookupFailedGeoRecord(ip)
	}

	if cached, exists := r.memory.Get(ip); exists {
		return cached.(*model.GeoRecord)
	}

	if record := r.getFromStore(ip); record != nil {
		r.memory.Add(ip, record)
		return record
	}

	record := r.lookupProvider(ip)
	if record.IsLookupFailed() {
		// Failures are not cached, the next pass may succeed.
		return record
	}

	r.memory.Add(ip, record)
	r.writeToStore(ip, record)
	return record
}

func (r *CachedResolver) getFromStore(ip string) *model.GeoRecord {
	key, err := cache.GeoCacheKey(ip)
	if err != nil {
		return nil
	}

	value, found, err := cacheRedis.GetIfExists(key)
	if err != nil || !found {
		return nil
	}

	var record model.GeoRecord
	if err := json.Unmarshal([]byte(value), &record); err != nil {
		log.WithError(err).WithField("ip", ip).Warn("Malformed geo cache entry, ignoring")
		return nil
	}
	return &record
}

// writeToStore - Best effort. A cache write failure must not fail the
// lookup.
func (r *CachedResolver) writeToStore(ip string, record *model.GeoRecord) {
	key, err := cache.GeoCacheKey(ip)
	if err != nil {
		return
	}

	value, err := json.Marshal(record)
	if err != nil {
		return
	}

	if err := cacheRedis.Set(key, string(value), cache.GeoCacheExpirySecs); err != nil {
		log.WithError(err).WithField("ip", ip).Warn("Failed to write geo cache entry")
	}
}

func (r *CachedResolver) lookupProvider(ip string) *model.GeoRecord {
	url := fmt.Sprintf("%s/%s/json", r.conf.BaseURL, ip)
	if r.conf.Token != "" {
		url = fmt.Sprintf("%s?token=%s", url, r.conf.Token)
	}

	resp, err := r.client.Get(url)
	if err != nil {
		log.WithError(err).WithField("ip", ip).Warn("Geo provider lookup failed")
		return model.NewLookupFailedGeoRecord(ip)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.WithFields(log.Fields{"ip": ip,
			"status": resp.StatusCode}).Warn("Geo provider returned non 200")
		return model.NewLookupFailedGeoRecord(ip)
	}

	var body providerResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		log.WithError(err).WithField("ip", ip).Warn("Malformed geo provider response")
		return model.NewLookupFailedGeoRecord(ip)
	}

	if body.City == "" {
		// Unresolvable city means nothing downstream can compare on it.
		return model.NewLookupFailedGeoRecord(ip)
	}

	return &model.GeoRecord{
		IP:          ip,
		City:        body.City,
		Region:      body.Region,
		Country:     body.Country,
		ISP:         normalizeISP(&body),
		Coordinates: body.Loc,
		Timezone:    body.Timezone,
	}
}
