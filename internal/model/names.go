package model

import "strings"

// Name prefixes used on the Target side, which has no blocked or paused field.
const (
	IndicatorBlocked = "🔒"
	IndicatorPaused  = "⏸"
)

// Default task name prefixes.
const (
	DefaultRecurringSymbol = "🔁"
	DefaultPostponedSymbol = "⏳"
)

// ApplyBlockedPrefix renders a name with the indicator of its blocked state.
func ApplyBlockedPrefix(name string, state BlockedState) string {
	switch state {
	case BlockedBlocked:
		return IndicatorBlocked + " " + name
	case BlockedPaused:
		return IndicatorPaused + " " + name
	default:
		return name
	}
}

// ParseBlockedName splits a Target name into its bare name and blocked state.
func ParseBlockedName(name string) (string, BlockedState) {
	if rest, ok := strings.CutPrefix(name, IndicatorBlocked+" "); ok {
		return rest, BlockedBlocked
	}
	if rest, ok := strings.CutPrefix(name, IndicatorPaused+" "); ok {
		return rest, BlockedPaused
	}
	return name, BlockedFree
}

// Symbols holds the task name prefixes for recurring and postponed tasks.
type Symbols struct {
	Recurring string
	Postponed string
}

// DefaultSymbols returns the default task name prefixes.
func DefaultSymbols() Symbols {
	return Symbols{Recurring: DefaultRecurringSymbol, Postponed: DefaultPostponedSymbol}
}

// WithRecurring prefixes name with the recurring symbol when recurring is set.
func (s Symbols) WithRecurring(name string, recurring bool) string {
	if !recurring || s.Recurring == "" {
		return name
	}
	return s.Recurring + " " + name
}

// WithPostponed prefixes name with the postponed symbol when postponed is set.
func (s Symbols) WithPostponed(name string, postponed bool) string {
	if !postponed || s.Postponed == "" {
		return name
	}
	return s.Postponed + " " + name
}

// Strip removes a leading recurring and then a leading postponed symbol.
func (s Symbols) Strip(name string) string {
	if s.Recurring != "" {
		name = strings.TrimPrefix(name, s.Recurring+" ")
	}
	if s.Postponed != "" {
		name = strings.TrimPrefix(name, s.Postponed+" ")
	}
	return strings.TrimSpace(name)
}
