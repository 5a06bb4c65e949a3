// Package outcome posts grades back to the LMS through the IMS LTI Basic
// Outcomes service (replaceResult).
package outcome

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"orthobox-backend/internal/oauth1"
)

const (
	namespace       = "http://www.imsglobal.org/services/ltiv1p1/xsd/imsoms_v1p0"
	protocolVersion = "V1.0"
	codeSuccess     = "success"
)

var (
	ErrNotAnOutcomeService = errors.New("tool wasn't launched as an outcome service")
	ErrRejected            = errors.New("outcome service rejected the request")
)

// Request is a replaceResult call for one launch.
type Request struct {
	ServiceURL     string
	SourcedID      string
	ConsumerKey    string
	ConsumerSecret string
	MessageID      string
	Score          float64
}

func (r Request) IsOutcomeService() bool {
	return r.ServiceURL != "" && r.SourcedID != ""
}

type envelopeRequest struct {
	XMLName xml.Name `xml:"imsx_POXEnvelopeRequest"`
	Xmlns   string   `xml:"xmlns,attr"`
	Header  struct {
		Info struct {
			Version   string `xml:"imsx_version"`
			MessageID string `xml:"imsx_messageIdentifier"`
		} `xml:"imsx_POXRequestHeaderInfo"`
	} `xml:"imsx_POXHeader"`
	Body struct {
		ReplaceResult struct {
			ResultRecord struct {
				SourcedGUID struct {
					SourcedID string `xml:"sourcedId"`
				} `xml:"sourcedGUID"`
				Result struct {
					ResultScore struct {
						Language   string `xml:"language"`
						TextString string `xml:"textString"`
					} `xml:"resultScore"`
				} `xml:"result"`
			} `xml:"resultRecord"`
		} `xml:"replaceResultRequest"`
	} `xml:"imsx_POXBody"`
}

// XML renders the request envelope. The score is rounded to two decimals.
func (r Request) XML() ([]byte, error) {
	if r.Score < 0 || r.Score > 1 {
		return nil, fmt.Errorf("score %v outside [0, 1]", r.Score)
	}
	var env envelopeRequest
	env.Xmlns = namespace
	env.Header.Info.Version = protocolVersion
	env.Header.Info.MessageID = r.MessageID
	rec := &env.Body.ReplaceResult.ResultRecord
	rec.SourcedGUID.SourcedID = r.SourcedID
	rec.Result.ResultScore.Language = "en"
	rec.Result.ResultScore.TextString = strconv.FormatFloat(r.Score, 'f', 2, 64)

	out, err := xml.Marshal(env)
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), out...), nil
}

// Response is the parsed imsx_POXEnvelopeResponse status.
type Response struct {
	StatusCode  int
	CodeMajor   string
	Severity    string
	Description string
	MessageRef  string
}

func (r *Response) Success() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300 && r.CodeMajor == codeSuccess
}

type envelopeResponse struct {
	XMLName xml.Name `xml:"imsx_POXEnvelopeResponse"`
	Header  struct {
		Info struct {
			StatusInfo struct {
				CodeMajor   string `xml:"imsx_codeMajor"`
				Severity    string `xml:"imsx_severity"`
				Description string `xml:"imsx_description"`
				MessageRef  string `xml:"imsx_messageRefIdentifier"`
			} `xml:"imsx_statusInfo"`
		} `xml:"imsx_POXResponseHeaderInfo"`
	} `xml:"imsx_POXHeader"`
}

func parseResponse(status int, body []byte) *Response {
	resp := &Response{StatusCode: status}
	var env envelopeResponse
	if err := xml.Unmarshal(body, &env); err != nil {
		return resp
	}
	info := env.Header.Info.StatusInfo
	resp.CodeMajor = info.CodeMajor
	resp.Severity = info.Severity
	resp.Description = info.Description
	resp.MessageRef = info.MessageRef
	return resp
}

type Poster struct {
	client *http.Client
}

func NewPoster(timeout time.Duration) *Poster {
	return &Poster{client: &http.Client{Timeout: timeout}}
}

// NewPosterWithClient is used by tests to route requests to httptest servers.
func NewPosterWithClient(client *http.Client) *Poster {
	return &Poster{client: client}
}

// ReplaceResult posts the score. A response that is not a 2xx with
// imsx_codeMajor "success" is returned together with ErrRejected.
func (p *Poster) ReplaceResult(ctx context.Context, r Request) (*Response, error) {
	if !r.IsOutcomeService() {
		return nil, ErrNotAnOutcomeService
	}

	body, err := r.XML()
	if err != nil {
		return nil, err
	}

	u, err := url.Parse(r.ServiceURL)
	if err != nil {
		return nil, fmt.Errorf("invalid outcome service url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/xml")

	signed, err := oauth1.Sign(req, r.ConsumerKey, r.ConsumerSecret)
	if err != nil {
		return nil, err
	}

	httpResp, err := p.client.Do(signed)
	if err != nil {
		return nil, fmt.Errorf("post outcome: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read outcome response: %w", err)
	}

	resp := parseResponse(httpResp.StatusCode, respBody)
	if !resp.Success() {
		return resp, fmt.Errorf("%w: status %d, codeMajor %q: %s",
			ErrRejected, resp.StatusCode, resp.CodeMajor, resp.Description)
	}
	return resp, nil
}
