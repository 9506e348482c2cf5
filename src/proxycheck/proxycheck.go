// Package proxycheck looks up reputation and location data for player IP
// addresses via the proxycheck.io API.
package proxycheck

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"

	"github.com/emberwake/relaygate/src/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var ErrPrivateAddress = errors.New("address is within a private network range")

type Client struct {
	httpClient *http.Client
	baseURL    string
	key        string
	log        zerolog.Logger
}

func NewClient(cfg utils.AppConfig, logger zerolog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		baseURL:    fmt.Sprintf("%s/v%d", cfg.ProxyCheckBaseURL, cfg.ProxyCheckVersion),
		key:        cfg.ProxyCheckKey,
		log:        logger,
	}
}

// IPAddress is the per-address object of a lookup response.
// https://proxycheck.io/api/#standard_responses
type IPAddress struct {
	Type          string `json:"type,omitempty"`
	VPN           YesNo  `json:"vpn"`
	Proxy         YesNo  `json:"proxy"`
	RiskScore     int    `json:"risk"`
	ASN           string `json:"asn,omitempty"`
	Organization  string `json:"organisation,omitempty"`
	ContinentName string `json:"continent,omitempty"`
	CountryName   string `json:"country,omitempty"`
	CountryCode   string `json:"isocode,omitempty"`
	RegionName    string `json:"region,omitempty"`
	CityName      string `json:"city,omitempty"`
	TimeZone      string `json:"timezone,omitempty"`
}

// YesNo decodes the API's "yes"/"no" strings as a boolean.
type YesNo bool

func (b *YesNo) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*b = s == "yes"
	return nil
}

// IsPrivate reports whether the address sits in a loopback, link-local
// or RFC 1918 range and is therefore not worth looking up.
func IsPrivate(ipAddress string) bool {
	ip := net.ParseIP(ipAddress)
	if ip == nil {
		return false
	}
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() || ip.IsLinkLocalUnicast()
}

// Check fetches known information about an IP address, including
// location and whether it is a VPN or proxy.
func (c *Client) Check(ctx context.Context, ipAddress string) (IPAddress, error) {
	if IsPrivate(ipAddress) {
		return IPAddress{}, ErrPrivateAddress
	}
	query := url.Values{}
	query.Set("vpn", "3")
	query.Set("risk", "1")
	query.Set("asn", "1")
	query.Set("cur", "0")
	if c.key != "" {
		query.Set("key", c.key)
	}
	lookupURL := fmt.Sprintf("%s/%s?%s", c.baseURL, url.PathEscape(ipAddress), query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, lookupURL, nil)
	if err != nil {
		return IPAddress{}, err
	}
	req.Header.Set("Accept", "application/json; */*")
	res, err := c.httpClient.Do(req)
	if err != nil {
		return IPAddress{}, err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return IPAddress{}, err
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return IPAddress{}, fmt.Errorf("proxycheck lookup failed with status %d", res.StatusCode)
	}

	var envelope map[string]jsoniter.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return IPAddress{}, fmt.Errorf("undecodable proxycheck response: %w", err)
	}
	var status string
	if raw, ok := envelope["status"]; ok {
		if err := json.Unmarshal(raw, &status); err != nil {
			return IPAddress{}, err
		}
	}
	if status != "ok" && status != "warning" {
		var message string
		if raw, ok := envelope["message"]; ok {
			_ = json.Unmarshal(raw, &message)
		}
		return IPAddress{}, fmt.Errorf("proxycheck said %q for %s", message, ipAddress)
	}
	raw, ok := envelope[ipAddress]
	if !ok {
		return IPAddress{}, fmt.Errorf("proxycheck response missing entry for %s", ipAddress)
	}
	var addr IPAddress
	if err := json.Unmarshal(raw, &addr); err != nil {
		return IPAddress{}, err
	}
	return addr, nil
}
