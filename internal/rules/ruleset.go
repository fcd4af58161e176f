package rules

// RuleSet is an immutable, ordered collection of compiled rules. It is safe
// for concurrent use.
type RuleSet struct {
	rules []*Rule
	byID  map[string]*Rule
}

func newRuleSet(compiled []*Rule) *RuleSet {
	byID := make(map[string]*Rule, len(compiled))
	for _, rule := range compiled {
		byID[rule.ID] = rule
	}
	return &RuleSet{rules: compiled, byID: byID}
}

// Rules returns the rules in match order (ascending id). The slice is a copy;
// the rules themselves must not be modified.
func (s *RuleSet) Rules() []*Rule {
	out := make([]*Rule, len(s.rules))
	copy(out, s.rules)
	return out
}

// Each calls fn for every rule in match order until fn returns false
func (s *RuleSet) Each(fn func(*Rule) bool) {
	for _, rule := range s.rules {
		if !fn(rule) {
			return
		}
	}
}

// Get returns the rule with the given id
func (s *RuleSet) Get(id string) (*Rule, bool) {
	rule, ok := s.byID[CanonicalID(id)]
	return rule, ok
}

// IDs returns the ids of all loaded rules in match order
func (s *RuleSet) IDs() []string {
	ids := make([]string, len(s.rules))
	for i, rule := range s.rules {
		ids[i] = rule.ID
	}
	return ids
}

// Len returns the number of loaded rules
func (s *RuleSet) Len() int {
	return len(s.rules)
}
