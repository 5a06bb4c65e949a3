// Package oauth1 adapts github.com/mrjones/oauth to the two-legged flows an
// LTI tool provider needs: verifying signed launches and signing outcome
// posts with oauth_body_hash.
package oauth1

import (
	"crypto"
	_ "crypto/sha1"
	_ "crypto/sha256"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/mrjones/oauth"
)

const (
	HMACSHA1   = "HMAC-SHA1"
	HMACSHA256 = "HMAC-SHA256"
)

var (
	ErrMissingParameter           = errors.New("oauth1: missing required parameter")
	ErrUnsupportedSignatureMethod = errors.New("oauth1: unsupported signature method")
	ErrInvalidSignature           = errors.New("oauth1: invalid signature")
)

// Timestamps are checked by callers against their own replay window.
var provider = oauth.ServiceProvider{
	BodyHash:        true,
	IgnoreTimestamp: true,
	SignQueryParams: true,
}

// SecretLookup resolves a consumer key to its shared secret.
type SecretLookup func(consumerKey string) (string, error)

// Verify checks the signature on r and returns the parameters it covered,
// minus oauth_signature. Errors from lookup are returned unchanged.
//
// Form bodies are only read when Content-Type is exactly
// application/x-www-form-urlencoded.
func Verify(r *http.Request, lookup SecretLookup) (map[string]string, error) {
	if h := r.Header.Get("Authorization"); h != "" && !wellFormedHeader(h) {
		return nil, fmt.Errorf("%w: malformed Authorization header", ErrInvalidSignature)
	}

	var (
		covered   map[string]string
		lookupErr error
	)
	p := oauth.NewProvider(func(key string, params map[string]string) (*oauth.Consumer, error) {
		covered = make(map[string]string, len(params))
		for k, v := range params {
			covered[k] = v
		}
		secret, err := lookup(key)
		if err != nil {
			lookupErr = err
			return nil, err
		}
		return newConsumer(key, secret, params[oauth.SIGNATURE_METHOD_PARAM])
	})

	_, err := p.IsAuthorized(r)
	switch {
	case err == nil:
		return covered, nil
	case lookupErr != nil:
		return nil, lookupErr
	case covered == nil:
		return nil, fmt.Errorf("%w: %v", ErrMissingParameter, err)
	case errors.Is(err, ErrUnsupportedSignatureMethod):
		return nil, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
}

// Sign returns a copy of r carrying an HMAC-SHA1 OAuth Authorization
// header. Bodies that are not form encoded are covered by oauth_body_hash.
// The body of r is consumed.
func Sign(r *http.Request, consumerKey, consumerSecret string) (*http.Request, error) {
	c, err := newConsumer(consumerKey, consumerSecret, HMACSHA1)
	if err != nil {
		return nil, err
	}
	return sign(c, r)
}

func sign(c *oauth.Consumer, r *http.Request) (*http.Request, error) {
	rec := &recorder{}
	c.HttpClient = rec

	rt, err := c.MakeRoundTripper(&oauth.AccessToken{})
	if err != nil {
		return nil, err
	}
	if _, err := rt.RoundTrip(r); err != nil {
		return nil, fmt.Errorf("sign request: %w", err)
	}
	return rec.req, nil
}

func newConsumer(key, secret, method string) (*oauth.Consumer, error) {
	switch method {
	case "", HMACSHA1:
		return oauth.NewCustomConsumer(key, secret, crypto.SHA1, provider, nil), nil
	case HMACSHA256:
		return oauth.NewCustomConsumer(key, secret, crypto.SHA256, provider, nil), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedSignatureMethod, method)
}

// recorder stands in for the consumer's HTTP client and keeps the signed
// request instead of sending it.
type recorder struct {
	req *http.Request
}

func (rec *recorder) Do(r *http.Request) (*http.Response, error) {
	rec.req = r
	return &http.Response{StatusCode: http.StatusNoContent, Body: http.NoBody, Request: r}, nil
}

// Every comma separated part of an OAuth header must be key=value.
func wellFormedHeader(h string) bool {
	if len(h) < 6 || !strings.EqualFold(h[:6], "OAuth ") {
		return true
	}
	for _, part := range strings.Split(h[6:], ",") {
		if !strings.Contains(part, "=") {
			return false
		}
	}
	return true
}
