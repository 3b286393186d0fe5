package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/lukasz-zimnoch/dexly/dashboard"
	"github.com/shopspring/decimal"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultURL            = "https://api.coingecko.com/api/v3"
	defaultRequestTimeout = 30 * time.Second
	defaultDecimals       = 18
)

type Config struct {
	URL     string
	Timeout time.Duration
}

// StatusError is returned when the API answers with an unexpected status.
type StatusError struct {
	StatusCode int
	Status     string
}

func (se *StatusError) Error() string {
	return fmt.Sprintf("unexpected response status: [%v]", se.Status)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(config *Config) *Client {
	baseURL := DefaultURL
	if len(config.URL) > 0 {
		baseURL = strings.TrimSuffix(config.URL, "/")
	}

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type coinResponse struct {
	Symbol          string `json:"symbol"`
	Name            string `json:"name"`
	DetailPlatforms map[string]struct {
		DecimalPlace *int `json:"decimal_place"`
	} `json:"detail_platforms"`
	Image struct {
		Thumb string `json:"thumb"`
		Small string `json:"small"`
	} `json:"image"`
}

type tokenPriceResponse map[string]struct {
	USD          *float64 `json:"usd"`
	USD24hChange *float64 `json:"usd_24h_change"`
}

func (c *Client) TokenMetadata(
	ctx context.Context,
	platform string,
	address string,
) (*dashboard.TokenMetadata, error) {
	address = strings.ToLower(address)

	endpoint := fmt.Sprintf(
		"%s/coins/%s/contract/%s",
		c.baseURL,
		url.PathEscape(platform),
		url.PathEscape(address),
	)

	response := new(coinResponse)
	if err := c.get(ctx, endpoint, response); err != nil {
		return nil, err
	}

	metadata := &dashboard.TokenMetadata{
		Address:  address,
		Symbol:   strings.ToUpper(response.Symbol),
		Name:     response.Name,
		Decimals: defaultDecimals,
		Logo:     response.Image.Small,
	}

	if len(metadata.Symbol) == 0 {
		metadata.Symbol = "UNKNOWN"
	}

	if len(metadata.Name) == 0 {
		metadata.Name = "Unknown Token"
	}

	if detail, ok := response.DetailPlatforms[platform]; ok &&
		detail.DecimalPlace != nil && *detail.DecimalPlace > 0 {
		metadata.Decimals = *detail.DecimalPlace
	}

	if len(metadata.Logo) == 0 {
		metadata.Logo = response.Image.Thumb
	}

	return metadata, nil
}

func (c *Client) TokenPrice(
	ctx context.Context,
	platform string,
	address string,
) (*dashboard.TokenPrice, error) {
	address = strings.ToLower(address)

	query := url.Values{}
	query.Set("contract_addresses", address)
	query.Set("vs_currencies", "usd")
	query.Set("include_24hr_change", "true")

	endpoint := fmt.Sprintf(
		"%s/simple/token_price/%s?%s",
		c.baseURL,
		url.PathEscape(platform),
		query.Encode(),
	)

	response := make(tokenPriceResponse)
	if err := c.get(ctx, endpoint, &response); err != nil {
		return nil, err
	}

	entry, ok := response[address]
	if !ok {
		return nil, fmt.Errorf("%w: no price for [%v]", dashboard.ErrTokenNotFound, address)
	}

	price := &dashboard.TokenPrice{
		Price:          decimal.Zero,
		PriceChange24h: decimal.Zero,
	}

	if entry.USD != nil {
		price.Price = decimal.NewFromFloat(*entry.USD)
	}

	if entry.USD24hChange != nil {
		price.PriceChange24h = decimal.NewFromFloat(*entry.USD24hChange)
	}

	return price, nil
}

func (c *Client) get(
	ctx context.Context,
	endpoint string,
	target interface{},
) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("could not create request: [%w]", err)
	}

	request.Header.Set("Accept", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("could not execute request: [%w]", err)
	}
	defer response.Body.Close()

	if response.StatusCode == http.StatusNotFound {
		return dashboard.ErrTokenNotFound
	}

	if response.StatusCode < 200 || response.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, response.Body)

		return &StatusError{
			StatusCode: response.StatusCode,
			Status:     response.Status,
		}
	}

	if err := json.NewDecoder(response.Body).Decode(target); err != nil {
		return fmt.Errorf("could not decode response: [%w]", err)
	}

	return nil
}
