package evaluation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

var ErrMalformedPayload = errors.New("malformed payload")

// ErrorEvent is one error the box recorded. Older clients send the length
// as "duration", newer ones as "len"; both are milliseconds.
type ErrorEvent struct {
	EndTime float64 `json:"endtime"`
	Len     float64 `json:"len"`
}

func (e *ErrorEvent) UnmarshalJSON(b []byte) error {
	var raw struct {
		EndTime  float64  `json:"endtime"`
		Len      *float64 `json:"len"`
		Duration *float64 `json:"duration"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	e.EndTime = raw.EndTime
	switch {
	case raw.Len != nil:
		e.Len = *raw.Len
	case raw.Duration != nil:
		e.Len = *raw.Duration
	}
	return nil
}

// Count accepts either a number or a list of events, counting the list.
type Count int

func (c *Count) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*c = 0
	case len(b) > 0 && b[0] == '[':
		var items []json.RawMessage
		if err := json.Unmarshal(b, &items); err != nil {
			return err
		}
		*c = Count(len(items))
	default:
		var n int
		if err := json.Unmarshal(b, &n); err != nil {
			return err
		}
		*c = Count(n)
	}
	return nil
}

// Version is the box version: a hardware number or a type name.
type Version string

func (v *Version) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*v = Version(s)
		return nil
	}
	if bytes.Equal(b, []byte("null")) {
		*v = ""
		return nil
	}
	var n int
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*v = Version(strconv.Itoa(n))
	return nil
}

// Submission is the JSON the activity box client uploads. Duration is in
// milliseconds.
type Submission struct {
	Duration      float64      `json:"duration"`
	Errors        []ErrorEvent `json:"errors"`
	Pokes         Count        `json:"pokes"`
	Drops         Count        `json:"drops"`
	Version       Version      `json:"version"`
	VersionString string       `json:"version_string,omitempty"`
}

func ParseSubmission(body []byte) (Submission, error) {
	var s Submission
	if err := json.Unmarshal(body, &s); err != nil {
		return s, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if s.Duration < 0 {
		return s, fmt.Errorf("%w: negative duration", ErrMalformedPayload)
	}
	return s, nil
}

// DurationSeconds truncates to whole seconds.
func (s Submission) DurationSeconds() int {
	return int(s.Duration / 1000)
}

// QualifyingErrors counts errors at least cutoff milliseconds long.
func (s Submission) QualifyingErrors(cutoff int) int {
	n := 0
	for _, e := range s.Errors {
		if e.Len >= float64(cutoff) {
			n++
		}
	}
	return n
}

// ActivityType resolves the box the data came from.
func (s Submission) ActivityType() (ActivityType, error) {
	for _, candidate := range []string{s.VersionString, string(s.Version)} {
		if candidate == "" {
			continue
		}
		if a, ok := ParseActivityType(candidate); ok {
			return a, nil
		}
		return "", fmt.Errorf("%w: %q", ErrUnknownActivityType, candidate)
	}
	return "", fmt.Errorf("%w: no version given", ErrUnknownActivityType)
}
