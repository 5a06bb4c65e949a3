package evaluation

import (
	"errors"
	"fmt"
)

// Criteria are the thresholds a run is judged against. Timeout is in
// seconds; ErrorCutoff is the minimum error length in milliseconds for an
// error to count.
type Criteria struct {
	Errors      int `json:"errors"`
	Timeout     int `json:"timeout"`
	Pokes       int `json:"pokes,omitempty"`
	Drops       int `json:"drops,omitempty"`
	ErrorCutoff int `json:"error_cutoff"`
}

const (
	defaultErrors      = 5
	defaultTimeout     = 300
	defaultPokes       = 9
	defaultDrops       = 0
	defaultErrorCutoff = 250
)

func DefaultCriteria(a ActivityType) Criteria {
	c := Criteria{
		Errors:      defaultErrors,
		Timeout:     defaultTimeout,
		ErrorCutoff: defaultErrorCutoff,
	}
	switch a {
	case Pokey:
		c.Pokes = defaultPokes
	case Peggy:
		c.Drops = defaultDrops
	}
	return c
}

// CriteriaPatch is a partial update; nil fields keep their value.
type CriteriaPatch struct {
	Errors      *int `json:"errors" yaml:"errors"`
	Timeout     *int `json:"timeout" yaml:"timeout"`
	Pokes       *int `json:"pokes" yaml:"pokes"`
	Drops       *int `json:"drops" yaml:"drops"`
	ErrorCutoff *int `json:"error_cutoff" yaml:"error_cutoff"`
}

var ErrInvalidCriteria = errors.New("invalid criteria")

func (c Criteria) Apply(p CriteriaPatch) (Criteria, error) {
	fields := []struct {
		name string
		src  *int
		dst  *int
	}{
		{"errors", p.Errors, &c.Errors},
		{"timeout", p.Timeout, &c.Timeout},
		{"pokes", p.Pokes, &c.Pokes},
		{"drops", p.Drops, &c.Drops},
		{"error_cutoff", p.ErrorCutoff, &c.ErrorCutoff},
	}
	for _, f := range fields {
		if f.src == nil {
			continue
		}
		if *f.src < 0 {
			return c, fmt.Errorf("%w: %s must not be negative", ErrInvalidCriteria, f.name)
		}
		*f.dst = *f.src
	}
	return c, nil
}
