// Package strategy defines the rule sets driving the backtest engine: named
// per-bar entry and exit conditions plus the risk parameters around them,
// and a Registry for looking built-in rule sets up by name.
package strategy

import (
	"fmt"
	"sort"

	"kabu/internal/domain"
)

// Rule is one per-bar condition over a price series.
type Rule interface {
	// Name identifies the rule in validation errors and logs.
	Name() string

	// Lookback returns how many leading bars the rule needs before its
	// flags become meaningful.
	Lookback() int

	// Validate checks the rule's parameters.
	Validate() error

	// Flags returns one flag per bar, true where the condition holds.
	// Bars inside the lookback window are always false.
	Flags(series *domain.PriceSeries) []bool
}

// RuleSet is a complete tradeable strategy definition. Entry rules are
// combined with AND, exit rules with OR. ProfitTarget and StopLoss are
// fractional moves from the entry price; MaxHoldBars forces an exit after
// that many bars in position (0 disables the limit).
type RuleSet struct {
	Name         string
	Interval     domain.Interval
	Entry        []Rule
	Exit         []Rule
	ProfitTarget float64
	StopLoss     float64
	MaxHoldBars  int
}

// Validate checks the rule set's structure and every rule's parameters.
func (rs *RuleSet) Validate() error {
	if rs.Name == "" {
		return fmt.Errorf("rule set has no name")
	}
	if !rs.Interval.Valid() {
		return fmt.Errorf("%s: invalid interval %q", rs.Name, rs.Interval)
	}
	if len(rs.Entry) == 0 {
		return fmt.Errorf("%s: at least one entry rule required", rs.Name)
	}
	if rs.ProfitTarget < 0 {
		return fmt.Errorf("%s: profit target %v must not be negative", rs.Name, rs.ProfitTarget)
	}
	if rs.StopLoss < 0 || rs.StopLoss >= 1 {
		return fmt.Errorf("%s: stop loss %v must be in [0, 1)", rs.Name, rs.StopLoss)
	}
	if rs.MaxHoldBars < 0 {
		return fmt.Errorf("%s: max hold bars %d must not be negative", rs.Name, rs.MaxHoldBars)
	}
	for _, r := range rs.Entry {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("%s: entry rule %s: %w", rs.Name, r.Name(), err)
		}
	}
	for _, r := range rs.Exit {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("%s: exit rule %s: %w", rs.Name, r.Name(), err)
		}
	}
	return nil
}

// Lookback returns the largest lookback over all rules, the number of
// leading bars that can never produce a signal.
func (rs *RuleSet) Lookback() int {
	max := 0
	for _, r := range rs.Entry {
		if lb := r.Lookback(); lb > max {
			max = lb
		}
	}
	for _, r := range rs.Exit {
		if lb := r.Lookback(); lb > max {
			max = lb
		}
	}
	return max
}

// Registry holds a named collection of rule sets for lookup and enumeration.
type Registry struct {
	rules map[string]*RuleSet
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		rules: make(map[string]*RuleSet),
	}
}

// Register adds a rule set to the registry, keyed by its Name.
func (r *Registry) Register(rs *RuleSet) {
	r.rules[rs.Name] = rs
}

// Get retrieves a rule set by name. The second return value indicates
// whether it was found.
func (r *Registry) Get(name string) (*RuleSet, bool) {
	rs, ok := r.rules[name]
	return rs, ok
}

// List returns a sorted slice of all registered rule set names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.rules))
	for name := range r.rules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
