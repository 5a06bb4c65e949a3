package evaluation

import (
	"fmt"
	"math"

	"orthobox-backend/internal/models"
)

// PassesRequired is how many passing runs make a full grade.
const PassesRequired = 3

// Evaluate classifies a run. Error count and timeout apply to every box;
// the rest is the box's own rule.
func Evaluate(a ActivityType, c Criteria, s Submission) (string, error) {
	if !a.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownActivityType, a)
	}
	if s.QualifyingErrors(c.ErrorCutoff) > c.Errors {
		return models.ResultFail, nil
	}
	if s.DurationSeconds() > c.Timeout {
		return models.ResultIncomplete, nil
	}
	switch a {
	case Pokey:
		return pokeyRule(c, s), nil
	case Peggy:
		return peggyRule(c, s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownActivityType, a)
}

// Every target has to be poked.
func pokeyRule(c Criteria, s Submission) string {
	if int(s.Pokes) >= c.Pokes {
		return models.ResultPass
	}
	return models.ResultIncomplete
}

// Dropping more objects than allowed fails the run.
func peggyRule(c Criteria, s Submission) string {
	if int(s.Drops) > c.Drops {
		return models.ResultFail
	}
	return models.ResultPass
}

// NextGrade advances the grade one third on a pass, capped at 1.0, and
// resets it on anything else.
func NextGrade(prev float64, result string) float64 {
	if result != models.ResultPass {
		return 0
	}
	passes := math.Round(prev*PassesRequired) + 1
	if passes > PassesRequired {
		passes = PassesRequired
	}
	if passes < 1 {
		passes = 1
	}
	return passes / PassesRequired
}

// ProgressCount maps a grade onto "N of 3".
func ProgressCount(grade float64) (int, int) {
	return int(math.Round(grade * PassesRequired)), PassesRequired
}

// OutcomeScore is the grade as sent to the LMS, two decimals.
func OutcomeScore(grade float64) float64 {
	return math.Round(grade*100) / 100
}
