package geo

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	C "attribution/config"
	"attribution/model/model"
)

func newTestResolver(t *testing.T, baseURL string) *CachedResolver {
	resolver, err := NewCachedResolver(C.GeoServiceConf{BaseURL: baseURL, TimeoutInSecs: 2})
	assert.Nil(t, err)
	return resolver
}

func TestLookupProvider(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/1.2.3.4/json", r.URL.Path)
		fmt.Fprint(w, `{"ip": "1.2.3.4", "city": "Austin", "region": "Texas",
			"country": "US", "org": "AS7922 Comcast Cable", "loc": "30.26,-97.74",
			"timezone": "America/Chicago"}`)
	}))
	defer server.Close()

	record := newTestResolver(t, server.URL).lookupProvider("1.2.3.4")
	assert.False(t, record.IsLookupFailed())
	assert.Equal(t, "Austin", record.City)
	assert.Equal(t, "Texas", record.Region)
	assert.Equal(t, "US", record.Country)
	assert.Equal(t, "AS7922 Comcast Cable", record.ISP)
	assert.Equal(t, "America/Chicago", record.Timezone)
}

func TestLookupProviderFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/5.6.7.8/json":
			w.WriteHeader(http.StatusTooManyRequests)
		case "/9.9.9.9/json":
			fmt.Fprint(w, `not json`)
		case "/8.8.8.8/json":
			// No city, nothing downstream can compare on.
			fmt.Fprint(w, `{"ip": "8.8.8.8", "country": "US"}`)
		}
	}))
	defer server.Close()

	resolver := newTestResolver(t, server.URL)
	for _, ip := range []string{"5.6.7.8", "9.9.9.9", "8.8.8.8"} {
		record := resolver.lookupProvider(ip)
		assert.True(t, record.IsLookupFailed(), "expected sentinel for %s", ip)
		assert.Equal(t, model.LookupFailed, record.City)
	}
}

func TestNormalizeISPBestOfChain(t *testing.T) {
	resp := &providerResponse{}
	resp.Org = "AS7922 Comcast Cable"
	resp.Carrier.Name = "Verizon Wireless"
	assert.Equal(t, "AS7922 Comcast Cable", normalizeISP(resp))

	// Company name outranks org when present.
	resp.Company.Name = "Comcast Cable Communications"
	assert.Equal(t, "Comcast Cable Communications", normalizeISP(resp))

	// Nothing recorded at all degrades to Unknown, never empty.
	assert.Equal(t, model.UnknownISP, normalizeISP(&providerResponse{}))
}

func TestResolveEmptyIP(t *testing.T) {
	resolver := newTestResolver(t, "http://localhost:0")
	record := resolver.Resolve("")
	assert.True(t, record.IsLookupFailed())
}
