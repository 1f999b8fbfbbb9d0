package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"net/url"
	"strconv"
	"strings"
	"time"

	"hrsecurity/config"
	"hrsecurity/model"
	"hrsecurity/utils"

	"go.uber.org/zap"
)

// LocationResolver resolves where a client is. It never fails; the last
// resort is model.UnknownLocation().
type LocationResolver interface {
	ResolveLocation(ctx context.Context, client model.ClientSignals) model.Location
}

var errNoCoordinates = errors.New("geolocation not permitted or not reported")

// ChainResolver tries the client's geolocation (reverse geocoded to a place),
// then an IP lookup, then gives up with an unknown location.
type ChainResolver struct {
	httpClient  *http.Client
	reverseURL  string
	ipLookupURL string
	timeout     time.Duration
	logger      *zap.Logger
}

func NewChainResolver(cfg config.GeoConfig, timeout time.Duration, logger *zap.Logger) *ChainResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChainResolver{
		httpClient:  &http.Client{Timeout: timeout},
		reverseURL:  cfg.ReverseGeocodeURL,
		ipLookupURL: strings.TrimRight(cfg.IPLookupURL, "/"),
		timeout:     timeout,
		logger:      logger,
	}
}

func (r *ChainResolver) ResolveLocation(ctx context.Context, client model.ClientSignals) (loc model.Location) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("location resolver panicked", zap.Any("panic", rec))
			loc = model.UnknownLocation()
		}
	}()

	lat, lon, err := geolocate(client)
	if err == nil {
		loc, err = r.reverseGeocode(ctx, lat, lon)
		if err == nil && loc.Known() {
			return loc
		}
		r.stageFailed("reverse_geocode", err)
	}

	loc, err = r.lookupIP(ctx, client.IPAddress)
	if err == nil && loc.Known() {
		return loc
	}
	r.stageFailed("ip_lookup", err)

	return model.UnknownLocation()
}

func (r *ChainResolver) stageFailed(stage string, err error) {
	if err == nil {
		err = errors.New("no country in response")
	}
	r.logger.Debug("location stage failed", zap.String("stage", stage), zap.Error(err))
	utils.TrackError("resolver", stage)
}

func geolocate(client model.ClientSignals) (float64, float64, error) {
	if !client.GeoPermission || client.Latitude == nil || client.Longitude == nil {
		return 0, 0, errNoCoordinates
	}
	lat, lon := *client.Latitude, *client.Longitude
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return 0, 0, fmt.Errorf("coordinates out of range: %f,%f", lat, lon)
	}
	return lat, lon, nil
}

type reverseGeocodeResponse struct {
	City        string `json:"city"`
	Locality    string `json:"locality"`
	CountryCode string `json:"countryCode"`
	CountryName string `json:"countryName"`
}

func (r *ChainResolver) reverseGeocode(ctx context.Context, lat, lon float64) (model.Location, error) {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(lat, 'f', 6, 64))
	q.Set("longitude", strconv.FormatFloat(lon, 'f', 6, 64))
	q.Set("localityLanguage", "en")

	var body reverseGeocodeResponse
	if err := r.getJSON(ctx, r.reverseURL+"?"+q.Encode(), &body); err != nil {
		return model.Location{}, err
	}

	city := body.City
	if city == "" {
		city = body.Locality
	}
	country := body.CountryCode
	if country == "" {
		country = body.CountryName
	}
	return model.Location{
		City:      orUnknown(city),
		Country:   orUnknown(country),
		Latitude:  &lat,
		Longitude: &lon,
		Source:    "geolocation",
	}, nil
}

type ipLookupResponse struct {
	City        string  `json:"city"`
	Country     string  `json:"country"`
	CountryCode string  `json:"country_code"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Error       bool    `json:"error"`
	Reason      string  `json:"reason"`
}

// lookupIP asks the lookup service about ip. Private, loopback and missing
// addresses are looked up as "self", which resolves the caller's public address.
func (r *ChainResolver) lookupIP(ctx context.Context, ip string) (model.Location, error) {
	endpoint := r.ipLookupURL + "/json/"
	if addr, err := netip.ParseAddr(ip); err == nil && isPublic(addr) {
		endpoint = fmt.Sprintf("%s/%s/json/", r.ipLookupURL, addr.String())
	}

	var body ipLookupResponse
	if err := r.getJSON(ctx, endpoint, &body); err != nil {
		return model.Location{}, err
	}
	if body.Error {
		return model.Location{}, fmt.Errorf("ip lookup failed: %s", body.Reason)
	}

	country := body.CountryCode
	if country == "" {
		country = body.Country
	}
	loc := model.Location{City: orUnknown(body.City), Country: orUnknown(country), Source: "ip"}
	if body.Latitude != 0 || body.Longitude != 0 {
		lat, lon := body.Latitude, body.Longitude
		loc.Latitude, loc.Longitude = &lat, &lon
	}
	return loc, nil
}

func isPublic(addr netip.Addr) bool {
	return addr.IsValid() && !addr.IsPrivate() && !addr.IsLoopback() &&
		!addr.IsUnspecified() && !addr.IsLinkLocalUnicast()
}

func (r *ChainResolver) getJSON(ctx context.Context, endpoint string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func orUnknown(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return model.UnknownPlace
	}
	return s
}
