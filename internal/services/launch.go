package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"orthobox-backend/internal/evaluation"
	"orthobox-backend/internal/oauth1"
	"orthobox-backend/internal/outcome"
	"orthobox-backend/internal/repository"
	"orthobox-backend/internal/store"
)

// ReplayWindow bounds both the accepted clock skew of oauth_timestamp and
// how long a nonce is remembered.
const ReplayWindow = time.Hour

// ToolProvider is a validated LTI launch.
type ToolProvider struct {
	ConsumerKey    string
	ConsumerSecret string
	Registered     bool

	UserID         string
	InstanceGUID   string
	ResourceLinkID string
	ContextID      string
	GivenName      string
	FamilyName     string
	FullName       string
	Roles          []string

	BoxVersion        string
	OutcomeServiceURL string
	ResultSourcedID   string
	ReturnURL         string

	Nonce     string
	Timestamp int64

	// Params holds every launch parameter as received.
	Params map[string]string
}

// NewToolProvider reads the launch parameters. It does not validate
// anything.
func NewToolProvider(key, secret string, params map[string]string) *ToolProvider {
	tp := &ToolProvider{
		ConsumerKey:       key,
		ConsumerSecret:    secret,
		UserID:            params["user_id"],
		InstanceGUID:      params["tool_consumer_instance_guid"],
		ResourceLinkID:    params["resource_link_id"],
		ContextID:         params["context_id"],
		GivenName:         params["lis_person_name_given"],
		FamilyName:        params["lis_person_name_family"],
		FullName:          params["lis_person_name_full"],
		BoxVersion:        params["custom_box_version"],
		OutcomeServiceURL: params["lis_outcome_service_url"],
		ResultSourcedID:   params["lis_result_sourcedid"],
		ReturnURL:         params["launch_presentation_return_url"],
		Nonce:             params["oauth_nonce"],
		Params:            params,
	}
	if ts, err := strconv.ParseInt(params["oauth_timestamp"], 10, 64); err == nil {
		tp.Timestamp = ts
	}
	for _, role := range strings.Split(params["roles"], ",") {
		if role = strings.TrimSpace(role); role != "" {
			tp.Roles = append(tp.Roles, role)
		}
	}
	return tp
}

// Username picks the friendliest name the LMS sent.
func (tp *ToolProvider) Username(def string) string {
	switch {
	case tp.GivenName != "":
		return tp.GivenName
	case tp.FamilyName != "":
		return tp.FamilyName
	case tp.FullName != "":
		return tp.FullName
	}
	return def
}

func (tp *ToolProvider) IsOutcomeService() bool {
	return tp.OutcomeServiceURL != "" && tp.ResultSourcedID != ""
}

// ActivityType resolves custom_box_version.
func (tp *ToolProvider) ActivityType() (evaluation.ActivityType, bool) {
	return evaluation.ParseActivityType(tp.BoxVersion)
}

// HasRole matches full URNs and short names like "Learner".
func (tp *ToolProvider) HasRole(role string) bool {
	for _, r := range tp.Roles {
		if strings.EqualFold(r, role) || strings.HasSuffix(strings.ToLower(r), "/"+strings.ToLower(role)) {
			return true
		}
	}
	return false
}

// OutcomeRequest builds the replaceResult call for this launch.
func (tp *ToolProvider) OutcomeRequest(messageID string, score float64) outcome.Request {
	return outcome.Request{
		ServiceURL:     tp.OutcomeServiceURL,
		SourcedID:      tp.ResultSourcedID,
		ConsumerKey:    tp.ConsumerKey,
		ConsumerSecret: tp.ConsumerSecret,
		MessageID:      messageID,
		Score:          score,
	}
}

// LaunchRequest is the part of the HTTP request the signature covers.
// OAuth parameters may arrive in the form or in an Authorization header.
type LaunchRequest struct {
	Method        string
	URL           *url.URL
	Form          url.Values
	Authorization string
}

// NewLaunchRequest reads the form body and any OAuth Authorization header.
// When baseURL is set it replaces the scheme and host the request arrived
// on, which is what the LMS signed when the tool sits behind a proxy.
func NewLaunchRequest(r *http.Request, baseURL string) (LaunchRequest, error) {
	if err := r.ParseForm(); err != nil {
		return LaunchRequest{}, newError(KindMissingCredentials, "unreadable launch form", err)
	}

	form := url.Values{}
	for k, vs := range r.PostForm {
		form[k] = append([]string(nil), vs...)
	}
	return LaunchRequest{
		Method:        r.Method,
		URL:           requestURL(r, baseURL),
		Form:          form,
		Authorization: r.Header.Get("Authorization"),
	}, nil
}

// signed rebuilds the request as the consumer signed it.
func (l LaunchRequest) signed() *http.Request {
	u := *l.URL
	r := &http.Request{
		Method: l.Method,
		URL:    &u,
		Host:   u.Host,
		Header: http.Header{},
		Body:   io.NopCloser(strings.NewReader(l.Form.Encode())),
	}
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if l.Authorization != "" {
		r.Header.Set("Authorization", l.Authorization)
	}
	return r
}

func requestURL(r *http.Request, baseURL string) *url.URL {
	u := *r.URL
	if baseURL != "" {
		if base, err := url.Parse(baseURL); err == nil {
			u.Scheme = base.Scheme
			u.Host = base.Host
			u.Path = strings.TrimRight(base.Path, "/") + r.URL.Path
			u.RawPath = ""
			return &u
		}
	}
	u.Host = r.Host
	u.Scheme = "http"
	if r.TLS != nil {
		u.Scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		u.Scheme = proto
	}
	return &u
}

// Authorizer validates LTI launches.
type Authorizer struct {
	creds  *repository.CredentialRepo
	nonces *repository.NonceRepo
	now    func() time.Time
}

func NewAuthorizer(creds *repository.CredentialRepo, nonces *repository.NonceRepo) *Authorizer {
	return &Authorizer{creds: creds, nonces: nonces, now: time.Now}
}

// Authorize checks, in order: consumer key present, consumer known,
// signature, timestamp age and nonce freshness.
func (a *Authorizer) Authorize(ctx context.Context, req LaunchRequest) (*ToolProvider, error) {
	var (
		secret     string
		registered bool
	)
	params, err := oauth1.Verify(req.signed(), func(key string) (string, error) {
		s, reg, err := a.creds.Secret(ctx, key)
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrUnknownConsumer
		}
		if err != nil {
			return "", fmt.Errorf("lookup consumer %s: %w", key, err)
		}
		secret, registered = s, reg
		return s, nil
	})
	switch {
	case errors.Is(err, oauth1.ErrMissingParameter):
		return nil, newError(KindMissingCredentials, "missing OAuth credentials", err)
	case errors.Is(err, oauth1.ErrInvalidSignature):
		return nil, newError(KindInvalidSignature, "invalid OAuth signature", err)
	case err != nil:
		return nil, err
	}

	key := params["oauth_consumer_key"]
	tp := NewToolProvider(key, secret, params)
	tp.Registered = registered

	ts, err := strconv.ParseInt(params["oauth_timestamp"], 10, 64)
	if err != nil {
		return nil, newError(KindRequestExpired, "invalid oauth_timestamp", err)
	}
	now := a.now()
	if skew := now.Unix() - ts; skew > int64(ReplayWindow/time.Second) || -skew > int64(ReplayWindow/time.Second) {
		return nil, ErrRequestExpired
	}

	fresh, err := a.nonces.Remember(ctx, key, tp.Nonce, now, ReplayWindow)
	if err != nil {
		return nil, fmt.Errorf("remember nonce: %w", err)
	}
	if !fresh {
		return nil, ErrReplayDetected
	}

	return tp, nil
}
