package captcha

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPVerifier checks captcha responses against a siteverify endpoint.
type HTTPVerifier struct {
	endpoint string
	secret   string
	client   *http.Client
}

// NewHTTPVerifier builds a verifier for the given endpoint and secret. The
// timeout bounds the whole verification round trip.
func NewHTTPVerifier(endpoint, secret string, timeout time.Duration) (*HTTPVerifier, error) {
	if endpoint == "" {
		return nil, errors.New("captcha endpoint required")
	}
	if secret == "" {
		return nil, errors.New("captcha secret required")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &HTTPVerifier{
		endpoint: endpoint,
		secret:   secret,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

// Verify posts the client's response token to the endpoint and returns the
// verdict. Any transport or decode failure returns an error; the caller
// rejects in that case.
func (v *HTTPVerifier) Verify(ctx context.Context, response string) (bool, error) {
	form := url.Values{
		"secret":   {v.secret},
		"response": {response},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, errors.New("captcha endpoint returned " + resp.Status)
	}

	var verdict struct {
		Success bool `json:"success"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&verdict); err != nil {
		return false, err
	}

	return verdict.Success, nil
}

// StaticVerifier accepts or rejects everything. Useful in tests and local
// development.
type StaticVerifier struct {
	Accept bool
}

func (v StaticVerifier) Verify(context.Context, string) (bool, error) {
	return v.Accept, nil
}
