package outcome

import (
	"context"
	"encoding/xml"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"orthobox-backend/internal/oauth1"
)

const successResponse = `<?xml version="1.0" encoding="UTF-8"?>
<imsx_POXEnvelopeResponse xmlns="http://www.imsglobal.org/services/ltiv1p1/xsd/imsoms_v1p0">
  <imsx_POXHeader>
    <imsx_POXResponseHeaderInfo>
      <imsx_version>V1.0</imsx_version>
      <imsx_messageIdentifier>4560</imsx_messageIdentifier>
      <imsx_statusInfo>
        <imsx_codeMajor>success</imsx_codeMajor>
        <imsx_severity>status</imsx_severity>
        <imsx_description>Score for 3124567 is now 0.33</imsx_description>
        <imsx_messageRefIdentifier>session-1</imsx_messageRefIdentifier>
        <imsx_operationRefIdentifier>replaceResult</imsx_operationRefIdentifier>
      </imsx_statusInfo>
    </imsx_POXResponseHeaderInfo>
  </imsx_POXHeader>
  <imsx_POXBody><replaceResultResponse/></imsx_POXBody>
</imsx_POXEnvelopeResponse>`

const failureResponse = `<?xml version="1.0" encoding="UTF-8"?>
<imsx_POXEnvelopeResponse xmlns="http://www.imsglobal.org/services/ltiv1p1/xsd/imsoms_v1p0">
  <imsx_POXHeader>
    <imsx_POXResponseHeaderInfo>
      <imsx_statusInfo>
        <imsx_codeMajor>failure</imsx_codeMajor>
        <imsx_severity>error</imsx_severity>
        <imsx_description>Invalid sourcedid</imsx_description>
      </imsx_statusInfo>
    </imsx_POXResponseHeaderInfo>
  </imsx_POXHeader>
</imsx_POXEnvelopeResponse>`

func TestRequestXML(t *testing.T) {
	r := Request{SourcedID: `{"data":{"instanceid":"10"}}`, MessageID: "session-1", Score: 1.0 / 3}
	out, err := r.XML()
	if err != nil {
		t.Fatalf("XML failed: %v", err)
	}

	var env envelopeRequest
	if err := xml.Unmarshal(out, &env); err != nil {
		t.Fatalf("generated XML does not parse: %v", err)
	}
	if env.Header.Info.MessageID != "session-1" || env.Header.Info.Version != "V1.0" {
		t.Errorf("header = %+v", env.Header.Info)
	}
	rec := env.Body.ReplaceResult.ResultRecord
	if rec.SourcedGUID.SourcedID != r.SourcedID {
		t.Errorf("sourcedId = %q", rec.SourcedGUID.SourcedID)
	}
	if rec.Result.ResultScore.TextString != "0.33" {
		t.Errorf("score = %q, want 0.33", rec.Result.ResultScore.TextString)
	}
	if !strings.Contains(string(out), namespace) {
		t.Errorf("namespace missing from %s", out)
	}
}

func TestRequestXMLRejectsOutOfRangeScore(t *testing.T) {
	if _, err := (Request{Score: 1.5}).XML(); err == nil {
		t.Fatalf("expected error for score > 1")
	}
}

func TestReplaceResultNotAnOutcomeService(t *testing.T) {
	p := NewPoster(time.Second)
	_, err := p.ReplaceResult(context.Background(), Request{ServiceURL: "http://lms/", Score: 1})
	if !errors.Is(err, ErrNotAnOutcomeService) {
		t.Fatalf("got %v, want ErrNotAnOutcomeService", err)
	}
}

func TestReplaceResultSignsAndPosts(t *testing.T) {
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/xml" {
			t.Errorf("Content-Type = %q", ct)
		}
		if !strings.Contains(r.Header.Get("Authorization"), "oauth_body_hash=") {
			t.Errorf("no oauth_body_hash in %q", r.Header.Get("Authorization"))
		}
		params, err := oauth1.Verify(r, func(key string) (string, error) { return "secret", nil })
		if err != nil {
			t.Errorf("signature: %v", err)
		}
		if params["oauth_consumer_key"] != "key" {
			t.Errorf("consumer key = %q", params["oauth_consumer_key"])
		}
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/xml")
		io.WriteString(w, successResponse)
	}))
	defer srv.Close()

	p := NewPosterWithClient(srv.Client())
	resp, err := p.ReplaceResult(context.Background(), Request{
		ServiceURL:     srv.URL + "/mod/lti/service.php",
		SourcedID:      "sourced-1",
		ConsumerKey:    "key",
		ConsumerSecret: "secret",
		MessageID:      "session-1",
		Score:          1.0 / 3,
	})
	if err != nil {
		t.Fatalf("ReplaceResult failed: %v", err)
	}
	if !resp.Success() || resp.MessageRef != "session-1" {
		t.Fatalf("response = %+v", resp)
	}
	if !strings.Contains(string(gotBody), "<textString>0.33</textString>") {
		t.Fatalf("posted body = %s", gotBody)
	}
}

func TestReplaceResultFailureResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, failureResponse)
	}))
	defer srv.Close()

	p := NewPosterWithClient(srv.Client())
	resp, err := p.ReplaceResult(context.Background(), Request{
		ServiceURL: srv.URL, SourcedID: "x", ConsumerKey: "k", ConsumerSecret: "s", Score: 1,
	})
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("got %v, want ErrRejected", err)
	}
	if resp == nil || resp.CodeMajor != "failure" || resp.Description != "Invalid sourcedid" {
		t.Fatalf("response = %+v", resp)
	}
}

func TestReplaceResultHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewPosterWithClient(srv.Client())
	_, err := p.ReplaceResult(context.Background(), Request{
		ServiceURL: srv.URL, SourcedID: "x", ConsumerKey: "k", ConsumerSecret: "s", Score: 0,
	})
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("got %v, want ErrRejected", err)
	}
}
