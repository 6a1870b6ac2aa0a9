package engine

// DefaultRules is the classic 1-75 game won with five completed lines, each
// player on their own board.
func DefaultRules() Rules {
	return Rules{
		Pattern:       PatternLines,
		RequiredLines: DefaultRequiredLines,
		Numbers:       NumberRange{Min: 1, Max: 75},
	}
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}
