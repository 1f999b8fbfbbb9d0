package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"hrsecurity/config"
	"hrsecurity/model"
)

// geoServers fakes the reverse geocoding and IP lookup services.
type geoServers struct {
	reverse *httptest.Server
	ip      *httptest.Server

	mu      sync.Mutex
	ipPaths []string
}

func newGeoServers(t *testing.T, reverse, ip http.HandlerFunc) *geoServers {
	t.Helper()
	g := &geoServers{}
	g.reverse = httptest.NewServer(reverse)
	g.ip = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		g.ipPaths = append(g.ipPaths, r.URL.Path)
		g.mu.Unlock()
		ip(w, r)
	}))
	t.Cleanup(func() {
		g.reverse.Close()
		g.ip.Close()
	})
	return g
}

func (g *geoServers) resolver() *ChainResolver {
	return NewChainResolver(config.GeoConfig{
		ReverseGeocodeURL: g.reverse.URL + "/reverse-geocode-client",
		IPLookupURL:       g.ip.URL + "/",
	}, time.Second, nil)
}

func (g *geoServers) lookups() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.ipPaths...)
}

func writeJSON(body any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	}
}

func failWith(status int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(status) }
}

func coords(lat, lon float64) model.ClientSignals {
	return model.ClientSignals{GeoPermission: true, Latitude: &lat, Longitude: &lon, IPAddress: "192.168.1.10"}
}

func TestResolveLocation(t *testing.T) {
	berlin := map[string]any{"city": "Berlin", "countryCode": "DE", "countryName": "Germany"}
	paris := map[string]any{"city": "Paris", "country_code": "FR", "latitude": 48.85, "longitude": 2.35}

	tests := []struct {
		name       string
		reverse    http.HandlerFunc
		ip         http.HandlerFunc
		client     model.ClientSignals
		wantCity   string
		wantCC     string
		wantSource string
		wantPath   string
	}{
		{
			name:       "geolocation reverse geocoded",
			reverse:    writeJSON(berlin),
			ip:         writeJSON(paris),
			client:     coords(52.52, 13.40),
			wantCity:   "Berlin",
			wantCC:     "DE",
			wantSource: "geolocation",
		},
		{
			name:       "locality when city is empty",
			reverse:    writeJSON(map[string]any{"locality": "Mitte", "countryCode": "DE"}),
			ip:         writeJSON(paris),
			client:     coords(52.52, 13.40),
			wantCity:   "Mitte",
			wantCC:     "DE",
			wantSource: "geolocation",
		},
		{
			name:       "no permission falls back to public ip",
			reverse:    writeJSON(berlin),
			ip:         writeJSON(paris),
			client:     model.ClientSignals{IPAddress: "8.8.8.8"},
			wantCity:   "Paris",
			wantCC:     "FR",
			wantSource: "ip",
			wantPath:   "/8.8.8.8/json/",
		},
		{
			name:       "private ip looks up self",
			reverse:    writeJSON(berlin),
			ip:         writeJSON(paris),
			client:     model.ClientSignals{IPAddress: "10.0.0.4"},
			wantCity:   "Paris",
			wantCC:     "FR",
			wantSource: "ip",
			wantPath:   "/json/",
		},
		{
			name:       "reverse geocoder down",
			reverse:    failWith(http.StatusServiceUnavailable),
			ip:         writeJSON(paris),
			client:     coords(52.52, 13.40),
			wantCity:   "Paris",
			wantCC:     "FR",
			wantSource: "ip",
			wantPath:   "/json/",
		},
		{
			name:       "out of range coordinates skip geocoding",
			reverse:    writeJSON(berlin),
			ip:         writeJSON(paris),
			client:     coords(123, 13.40),
			wantCity:   "Paris",
			wantCC:     "FR",
			wantSource: "ip",
			wantPath:   "/json/",
		},
		{
			name:       "ip service reports an error",
			reverse:    writeJSON(berlin),
			ip:         writeJSON(map[string]any{"error": true, "reason": "RateLimited"}),
			client:     model.ClientSignals{IPAddress: "8.8.8.8"},
			wantCity:   model.UnknownPlace,
			wantCC:     model.UnknownPlace,
			wantSource: "none",
			wantPath:   "/8.8.8.8/json/",
		},
		{
			name:       "everything down",
			reverse:    failWith(http.StatusInternalServerError),
			ip:         failWith(http.StatusInternalServerError),
			client:     coords(52.52, 13.40),
			wantCity:   model.UnknownPlace,
			wantCC:     model.UnknownPlace,
			wantSource: "none",
			wantPath:   "/json/",
		},
		{
			name:       "garbage body",
			reverse:    writeJSON(berlin),
			ip:         func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("<html>")) },
			client:     model.ClientSignals{},
			wantCity:   model.UnknownPlace,
			wantCC:     model.UnknownPlace,
			wantSource: "none",
			wantPath:   "/json/",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newGeoServers(t, tt.reverse, tt.ip)
			got := g.resolver().ResolveLocation(context.Background(), tt.client)

			if got.City != tt.wantCity || got.Country != tt.wantCC || got.Source != tt.wantSource {
				t.Errorf("ResolveLocation() = %+v, want %s/%s via %s", got, tt.wantCity, tt.wantCC, tt.wantSource)
			}
			paths := g.lookups()
			if tt.wantPath == "" && len(paths) != 0 {
				t.Errorf("unexpected IP lookups %v", paths)
			}
			if tt.wantPath != "" && (len(paths) != 1 || paths[0] != tt.wantPath) {
				t.Errorf("IP lookups = %v, want [%s]", paths, tt.wantPath)
			}
		})
	}
}

func TestResolveLocationTimesOut(t *testing.T) {
	slow := func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}
	g := newGeoServers(t, slow, slow)
	r := NewChainResolver(config.GeoConfig{
		ReverseGeocodeURL: g.reverse.URL,
		IPLookupURL:       g.ip.URL,
	}, 50*time.Millisecond, nil)

	start := time.Now()
	got := r.ResolveLocation(context.Background(), coords(52.52, 13.40))
	if got.Known() {
		t.Errorf("ResolveLocation() = %+v, want unknown", got)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("resolver took %v, want it bounded by its timeout", elapsed)
	}
}

func TestLocationString(t *testing.T) {
	tests := []struct {
		loc  model.Location
		want string
	}{
		{model.Location{City: "Berlin", Country: "DE"}, "Berlin, DE"},
		{model.Location{City: model.UnknownPlace, Country: "DE"}, "DE"},
		{model.UnknownLocation(), "Unknown Location"},
	}
	for _, tt := range tests {
		if got := tt.loc.String(); got != tt.want {
			t.Errorf("%+v.String() = %q, want %q", tt.loc, got, tt.want)
		}
	}
}
