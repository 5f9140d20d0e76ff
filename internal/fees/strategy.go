package fees

// Strategy names a fixed composition of pipeline stages.
type Strategy string

const (
	// StrategyStandard counts calendar days and escalates linearly.
	StrategyStandard Strategy = "standard"

	// StrategyProgressive counts calendar days and escalates steeper
	// beyond the threshold.
	StrategyProgressive Strategy = "progressive"

	// StrategyWeekendExclusive counts business days only and escalates
	// linearly.
	StrategyWeekendExclusive Strategy = "weekend-exclusive"
)

// ParseStrategy resolves a strategy name. Unrecognized names fall back to
// standard, mirroring the rate and discount lookup fallbacks. The legacy
// underscore spelling of weekend-exclusive is accepted.
func ParseStrategy(name string) Strategy {
	switch name {
	case string(StrategyProgressive):
		return StrategyProgressive
	case string(StrategyWeekendExclusive), "weekend_exclusive":
		return StrategyWeekendExclusive
	default:
		return StrategyStandard
	}
}

// Strategies returns all strategies in report order.
func Strategies() []Strategy {
	return []Strategy{StrategyStandard, StrategyProgressive, StrategyWeekendExclusive}
}
