// Package evaluation classifies uploaded activity-box runs and computes the
// grade progression. Everything here is pure; persistence lives in the
// repository package.
package evaluation

import (
	"errors"
	"strconv"
	"strings"
)

// ActivityType is the closed set of activity boxes the tool knows.
type ActivityType string

const (
	Pokey ActivityType = "pokey"
	Peggy ActivityType = "peggy"
)

const UnknownActivityName = "Unknown Activity"

var ErrUnknownActivityType = errors.New("unknown activity type")

var activityTypes = []ActivityType{Pokey, Peggy}

// ActivityTypes returns every known type in a stable order.
func ActivityTypes() []ActivityType {
	out := make([]ActivityType, len(activityTypes))
	copy(out, activityTypes)
	return out
}

// Name is the label shown to students.
func (a ActivityType) Name() string {
	switch a {
	case Pokey:
		return "Triangulation"
	case Peggy:
		return "Object Manipulation"
	}
	return UnknownActivityName
}

func (a ActivityType) Valid() bool {
	switch a {
	case Pokey, Peggy:
		return true
	}
	return false
}

// FromBoxVersion maps the hardware version number reported by the client.
func FromBoxVersion(n int) (ActivityType, bool) {
	switch n {
	case 1:
		return Pokey, true
	case 2:
		return Peggy, true
	}
	return "", false
}

// ParseActivityType accepts the type name, the legacy "_dev" suffixed
// names, or a box version number.
func ParseActivityType(s string) (ActivityType, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimSuffix(s, "_dev")
	if n, err := strconv.Atoi(s); err == nil {
		return FromBoxVersion(n)
	}
	a := ActivityType(s)
	return a, a.Valid()
}

// ActivityName labels a launch's custom_box_version, falling back to
// "Unknown Activity".
func ActivityName(version string) string {
	a, ok := ParseActivityType(version)
	if !ok {
		return UnknownActivityName
	}
	return a.Name()
}
