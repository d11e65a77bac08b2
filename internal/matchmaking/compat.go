package matchmaking

import "chatroulette/backend/internal/models"

// Rule is one compatibility criterion. Rules must be symmetric and free of
// side effects.
type Rule func(a, b models.User) bool

// GenderRule treats an unset gender as a wildcard; two declared genders
// are compatible only if they differ.
func GenderRule(a, b models.User) bool {
	if a.Gender == models.GenderUnset || b.Gender == models.GenderUnset {
		return true
	}
	return a.Gender != b.Gender
}

// RegionRule requires equal regions when both users declared one and at
// least one of them turned the region filter on.
func RegionRule(a, b models.User) bool {
	if a.Region == "" || b.Region == "" {
		return true
	}
	if !a.RegionFilter && !b.RegionFilter {
		return true
	}
	return a.Region == b.Region
}

// Evaluator decides whether two queued users may be paired.
type Evaluator struct {
	rules []Rule
}

// NewEvaluator builds an evaluator from rules. With no rules it uses GenderRule.
func NewEvaluator(rules ...Rule) *Evaluator {
	if len(rules) == 0 {
		rules = []Rule{GenderRule}
	}
	return &Evaluator{rules: rules}
}

// Compatible reports whether every rule accepts the pair. A user is never
// compatible with itself.
func (e *Evaluator) Compatible(a, b models.User) bool {
	if a.ID == b.ID {
		return false
	}
	for _, rule := range e.rules {
		if !rule(a, b) {
			return false
		}
	}
	return true
}
