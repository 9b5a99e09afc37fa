// Package weather enriches the planning notification with current conditions
// for the club's city. Lookup failures only degrade the payload; they never
// block a cycle.
package weather

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultBaseURL = "http://api.weatherapi.com/v1"

type Summary struct {
	TemperatureC int
	Description  string
	Humidity     int
}

type Client struct {
	http   *resty.Client
	apiKey string
}

func NewClient(apiKey string) *Client {
	return &Client{
		http:   resty.New().SetBaseURL(defaultBaseURL).SetTimeout(5 * time.Second),
		apiKey: apiKey,
	}
}

// SetBaseURL overrides the API host. Tests point it at a local server.
func (c *Client) SetBaseURL(u string) { c.http.SetBaseURL(u) }

type currentResponse struct {
	Current struct {
		TempC     float64 `json:"temp_c"`
		Humidity  int     `json:"humidity"`
		Condition struct {
			Text string `json:"text"`
		} `json:"condition"`
	} `json:"current"`
}

// Current returns today's conditions for city, or nil when the lookup fails
// for any reason.
func (c *Client) Current(ctx context.Context, city string) *Summary {
	if c.apiKey == "" {
		return nil
	}
	var res currentResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"key":  c.apiKey,
			"q":    city,
			"lang": "fr",
		}).
		SetResult(&res).
		Get("/current.json")
	if err != nil || resp.StatusCode() != 200 {
		return nil
	}
	return &Summary{
		TemperatureC: int(res.Current.TempC + 0.5),
		Description:  res.Current.Condition.Text,
		Humidity:     res.Current.Humidity,
	}
}

func (s *Summary) String() string {
	if s == nil {
		return "non disponible"
	}
	return fmt.Sprintf("%d°C, %s, humidité %d%%", s.TemperatureC, s.Description, s.Humidity)
}
