package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Weather reports current conditions for a city using Open-Meteo.
type Weather struct {
	geocodeURL  string
	forecastURL string
	client      *http.Client
}

// NewWeather creates the get_weather tool.
func NewWeather() *Weather {
	return &Weather{
		geocodeURL:  "https://geocoding-api.open-meteo.com/v1/search",
		forecastURL: "https://api.open-meteo.com/v1/forecast",
		client:      newHTTPClient(15 * time.Second),
	}
}

func (w *Weather) Name() string { return "get_weather" }
func (w *Weather) Description() string {
	return "Get the current weather for a given city using Open-Meteo API."
}
func (w *Weather) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"city": {"type": "string", "description": "City name, e.g. Paris"}
		},
		"required": ["city"]
	}`)
}

type geocodeResponse struct {
	Results []struct {
		Name      string  `json:"name"`
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"results"`
}

type forecastResponse struct {
	Current struct {
		Temperature *float64 `json:"temperature_2m"`
		WeatherCode *int     `json:"weather_code"`
	} `json:"current"`
}

func (w *Weather) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var params struct {
		City string `json:"city"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return "", fmt.Errorf("parse args: %w", err)
	}
	city := strings.TrimSpace(params.City)
	if city == "" {
		return "", fmt.Errorf("city is required")
	}

	q := url.Values{}
	q.Set("name", city)
	q.Set("count", "1")
	q.Set("language", "en")
	q.Set("format", "json")
	var geo geocodeResponse
	if err := getJSON(ctx, w.client, w.geocodeURL+"?"+q.Encode(), nil, &geo); err != nil {
		return "", fmt.Errorf("geocode %q: %w", city, err)
	}
	if len(geo.Results) == 0 {
		return fmt.Sprintf("Could not find coordinates for %s.", city), nil
	}
	loc := geo.Results[0]

	q = url.Values{}
	q.Set("latitude", strconv.FormatFloat(loc.Latitude, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(loc.Longitude, 'f', -1, 64))
	q.Set("current", "temperature_2m,weather_code")
	q.Set("temperature_unit", "fahrenheit")
	var fc forecastResponse
	if err := getJSON(ctx, w.client, w.forecastURL+"?"+q.Encode(), nil, &fc); err != nil {
		return "", fmt.Errorf("forecast for %s: %w", loc.Name, err)
	}

	temp := "unknown"
	if fc.Current.Temperature != nil {
		temp = strconv.FormatFloat(*fc.Current.Temperature, 'f', -1, 64) + "°F"
	}
	condition := "Unknown"
	if fc.Current.WeatherCode != nil {
		condition = Condition(*fc.Current.WeatherCode)
	}
	return fmt.Sprintf("Current weather in %s: %s, %s.", loc.Name, temp, condition), nil
}

// Condition maps a WMO weather code to a short description.
func Condition(code int) string {
	switch code {
	case 0:
		return "Clear sky"
	case 1, 2, 3:
		return "Partly cloudy"
	case 45, 48:
		return "Foggy"
	case 51, 53, 55:
		return "Drizzle"
	case 61, 63, 65:
		return "Rain"
	case 71, 73, 75:
		return "Snow"
	case 95, 96, 99:
		return "Thunderstorm"
	}
	return "Unknown"
}
