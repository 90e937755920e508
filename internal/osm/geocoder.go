package osm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"lora-osmnotes/gateway/internal/logging"
)

const (
	geocodeTimeout = 5 * time.Second
	// Nominatim's usage policy caps clients at one request per second.
	geocodeMinInterval = time.Second
	geocodeUserAgent   = "lora-osmnotes-gateway/1.0"
)

// Geocoder resolves coordinates to a short human-readable place name for
// success acknowledgements. Strictly best-effort.
type Geocoder struct {
	apiURL  string
	client  *http.Client
	limiter *rate.Limiter
	lang    string
	log     *zap.SugaredLogger
}

func NewGeocoder(apiURL, lang string) *Geocoder {
	return &Geocoder{
		apiURL:  apiURL,
		client:  &http.Client{Timeout: geocodeTimeout},
		limiter: rate.NewLimiter(rate.Every(geocodeMinInterval), 1),
		lang:    lang,
		log:     logging.WithComponent("geocoder"),
	}
}

type geocodeResponse struct {
	DisplayName string `json:"display_name"`
	Address     struct {
		Neighbourhood string `json:"neighbourhood"`
		Suburb        string `json:"suburb"`
		Village       string `json:"village"`
		Town          string `json:"town"`
		City          string `json:"city"`
		Country       string `json:"country"`
	} `json:"address"`
}

// Reverse returns a place string like "Prado Veraniego, Bogotá, Colombia",
// or empty on any failure.
func (g *Geocoder) Reverse(ctx context.Context, lat, lon float64) string {
	if err := g.limiter.Wait(ctx); err != nil {
		return ""
	}

	q := url.Values{}
	q.Set("lat", fmt.Sprintf("%.6f", lat))
	q.Set("lon", fmt.Sprintf("%.6f", lon))
	q.Set("format", "json")
	q.Set("addressdetails", "1")
	q.Set("accept-language", g.lang)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.apiURL+"?"+q.Encode(), nil)
	if err != nil {
		return ""
	}
	req.Header.Set("User-Agent", geocodeUserAgent)

	resp, err := g.client.Do(req)
	if err != nil {
		g.log.Debugw("reverse geocode failed", "error", err.Error())
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ""
	}

	var decoded geocodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return ""
	}

	parts := make([]string, 0, 3)
	if v := firstNonEmpty(decoded.Address.Neighbourhood, decoded.Address.Suburb); v != "" {
		parts = append(parts, v)
	}
	if v := firstNonEmpty(decoded.Address.City, decoded.Address.Town, decoded.Address.Village); v != "" {
		parts = append(parts, v)
	}
	if decoded.Address.Country != "" {
		parts = append(parts, decoded.Address.Country)
	}
	if len(parts) == 0 {
		return decoded.DisplayName
	}
	return strings.Join(parts, ", ")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
