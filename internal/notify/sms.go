package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrRetryLater is returned when the SMS provider throttles us.
type ErrRetryLater struct {
	After time.Duration
}

func (e *ErrRetryLater) Error() string {
	return fmt.Sprintf("sms provider asked to retry after %s", e.After)
}

// FormatPhoneNumber converts a local number to E.164 using countryCode
// (digits only, e.g. "92").
func FormatPhoneNumber(phone, countryCode string) string {
	var digits strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	switch {
	case d == "":
		return ""
	case strings.HasPrefix(strings.TrimSpace(phone), "+"):
		return "+" + d
	case strings.HasPrefix(d, "0") && len(d) == 11:
		return "+" + countryCode + d[1:]
	case strings.HasPrefix(d, countryCode) && len(d) == len(countryCode)+10:
		return "+" + d
	case len(d) == 10:
		return "+" + countryCode + d
	default:
		return "+" + d
	}
}

type TwilioConfig struct {
	AccountSID  string
	AuthToken   string
	From        string
	BaseURL     string
	CountryCode string
}

func (c TwilioConfig) Enabled() bool {
	return c.AccountSID != "" && c.AuthToken != "" && c.From != ""
}

// TwilioClient sends messages through the Twilio Messages REST resource.
type TwilioClient struct {
	cfg    TwilioConfig
	client *http.Client
}

func NewTwilioClient(cfg TwilioConfig, client *http.Client) *TwilioClient {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.twilio.com"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &TwilioClient{cfg: cfg, client: client}
}

func (c *TwilioClient) Send(ctx context.Context, to, body string) error {
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.cfg.BaseURL, c.cfg.AccountSID)
	form := url.Values{}
	form.Set("To", FormatPhoneNumber(to, c.cfg.CountryCode))
	form.Set("From", c.cfg.From)
	form.Set("Body", body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build sms request: %w", err)
	}
	req.SetBasicAuth(c.cfg.AccountSID, c.cfg.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send sms: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		seconds, convErr := strconv.Atoi(resp.Header.Get("Retry-After"))
		if convErr != nil || seconds <= 0 {
			seconds = 1
		}
		return &ErrRetryLater{After: time.Duration(seconds) * time.Second}
	}
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("sms provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}
