package domainage

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryAgeCache struct {
	entries map[string]int
	hits    int
}

func newMemoryAgeCache() *memoryAgeCache {
	return &memoryAgeCache{entries: map[string]int{}}
}

func (m *memoryAgeCache) GetDomainAge(_ context.Context, domain string) (int, bool, error) {
	months, ok := m.entries[domain]
	if ok {
		m.hits++
	}
	return months, ok, nil
}

func (m *memoryAgeCache) SetDomainAge(_ context.Context, domain string, months int) error {
	m.entries[domain] = months
	return nil
}

func newWhoisServer(t *testing.T, creationDate string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.URL.Query().Get("name"))
		fmt.Fprintf(w, `{"creation_date": %q}`, creationDate)
	}))
}

func testClient(baseURL string, cache AgeCache) *Client {
	client := NewClient(baseURL, 5, cache)
	client.now = func() time.Time { return time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC) }
	return client
}

func TestLookup(t *testing.T) {
	server := newWhoisServer(t, "2020-01-10")
	defer server.Close()

	client := testClient(server.URL, nil)

	months, err := client.Lookup(context.Background(), "acme.org")
	require.NoError(t, err)

	// Jan 2020 to Mar 2026.
	assert.Equal(t, 74, months)
}

func TestLookupDateFormats(t *testing.T) {
	for _, creationDate := range []string{
		"2025-12-01",
		"2025-12-01 08:30:00",
		"2025-12-01T08:30:00Z",
	} {
		server := newWhoisServer(t, creationDate)

		client := testClient(server.URL, nil)
		months, err := client.Lookup(context.Background(), "acme.org")
		server.Close()

		require.NoError(t, err, creationDate)
		assert.Equal(t, 3, months, creationDate)
	}
}

func TestLookupFutureCreationDateClampsToZero(t *testing.T) {
	server := newWhoisServer(t, "2027-01-01")
	defer server.Close()

	client := testClient(server.URL, nil)

	months, err := client.Lookup(context.Background(), "acme.org")
	require.NoError(t, err)
	assert.Equal(t, 0, months)
}

func TestLookupUsesCache(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprint(w, `{"creation_date": "2020-01-10"}`)
	}))
	defer server.Close()

	cache := newMemoryAgeCache()
	client := testClient(server.URL, cache)

	first, err := client.Lookup(context.Background(), "acme.org")
	require.NoError(t, err)

	second, err := client.Lookup(context.Background(), "acme.org")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, cache.hits)
}

func TestLookupAlternateKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"creationDate": "2020-01-10"}`)
	}))
	defer server.Close()

	client := testClient(server.URL, nil)

	months, err := client.Lookup(context.Background(), "acme.org")
	require.NoError(t, err)
	assert.Equal(t, 74, months)
}

func TestLookupErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}},
		{"no creation date", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{}`)
		}},
		{"unparseable date", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"creation_date": "last spring"}`)
		}},
		{"malformed body", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `not json`)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			client := testClient(server.URL, nil)

			_, err := client.Lookup(context.Background(), "acme.org")
			assert.Error(t, err)
		})
	}
}
