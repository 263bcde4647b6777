package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const defaultWeatherBaseURL = "https://api.open-meteo.com/v1/forecast"

// WeatherTool fetches current conditions for a coordinate pair.
type WeatherTool struct {
	httpClient *http.Client
	baseURL    string
}

func NewWeatherTool() *WeatherTool {
	return &WeatherTool{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    defaultWeatherBaseURL,
	}
}

// NewWeatherToolWithBaseURL exists for tests pointing at a fake server.
func NewWeatherToolWithBaseURL(baseURL string) *WeatherTool {
	t := NewWeatherTool()
	t.baseURL = baseURL
	return t
}

func (t *WeatherTool) Name() string { return "get_weather" }

func (t *WeatherTool) Description() string {
	return "Get the current weather at a location given its latitude and longitude."
}

func (t *WeatherTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"latitude": {"type": "number", "description": "Latitude of the location"},
			"longitude": {"type": "number", "description": "Longitude of the location"}
		},
		"required": ["latitude", "longitude"]
	}`)
}

func (t *WeatherTool) Execute(ctx context.Context, _ uint, args json.RawMessage) (string, error) {
	var input struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	}
	if err := json.Unmarshal(args, &input); err != nil {
		return "", fmt.Errorf("parse weather arguments failed: %w", err)
	}

	query := url.Values{}
	query.Set("latitude", strconv.FormatFloat(input.Latitude, 'f', -1, 64))
	query.Set("longitude", strconv.FormatFloat(input.Longitude, 'f', -1, 64))
	query.Set("current", "temperature_2m")
	query.Set("hourly", "temperature_2m")
	query.Set("daily", "sunrise,sunset")
	query.Set("timezone", "auto")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("build weather request failed: %w", err)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("weather request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read weather response failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("weather response status %d: %s", resp.StatusCode, string(raw))
	}
	return string(raw), nil
}
