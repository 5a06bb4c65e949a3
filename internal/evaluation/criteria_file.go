package evaluation

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadCriteriaFile reads per-activity criteria overrides, for example:
//
//	pokey:
//	  pokes: 9
//	  timeout: 300
//	peggy:
//	  drops: 0
//
// Keys are anything ParseActivityType accepts.
func LoadCriteriaFile(path string) (map[ActivityType]CriteriaPatch, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read criteria file: %w", err)
	}

	var doc map[string]CriteriaPatch
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse criteria file %s: %w", path, err)
	}

	out := make(map[ActivityType]CriteriaPatch, len(doc))
	for key, patch := range doc {
		a, ok := ParseActivityType(key)
		if !ok {
			return nil, fmt.Errorf("%w: %q in %s", ErrUnknownActivityType, key, path)
		}
		if _, err := DefaultCriteria(a).Apply(patch); err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		out[a] = patch
	}
	return out, nil
}
