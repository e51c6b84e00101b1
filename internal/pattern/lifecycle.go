package pattern

import (
	"time"

	"github.com/thebtf/tasteid/pkg/models"
)

// Observation is what one run learned about a detector's behavior.
type Observation struct {
	// Span is the stretch of history between the first and the latest supporting event,
	// including support recorded by earlier runs.
	Span time.Duration
	// SinceLastSeen is the time between the latest supporting event and the newest event.
	SinceLastSeen time.Duration
	// Confidence is the detector's fresh confidence over the full history.
	Confidence float64
	// Support is the number of supporting events in the current history.
	Support int
	// EventsSinceSeen is the number of events after the latest supporting event.
	EventsSinceSeen int
}

// Transition is the pattern lifecycle state machine. It maps the current status and
// the latest observation onto the next status. PatternStatusNone as a result means
// the pattern is not tracked (never emerged, or dropped after fading long enough).
//
// The function is a fixed point on its own output: applying it again with the same
// observation returns the same status.
func Transition(current models.PatternStatus, obs Observation, config Config) models.PatternStatus {
	stale := obs.EventsSinceSeen >= config.FadeAfterEvents
	fading := obs.Confidence < config.FadeThreshold || stale
	emerging := obs.Confidence >= config.EmergenceThreshold && !stale

	switch current {
	case models.PatternStatusEmerging, models.PatternStatusConfirmed:
		if fading {
			return models.PatternStatusFaded
		}
		if current == models.PatternStatusEmerging && confirmable(obs, config) {
			return models.PatternStatusConfirmed
		}
		return current

	case models.PatternStatusFaded:
		if emerging {
			return promote(obs, config)
		}
		if droppable(obs, config) {
			return models.PatternStatusNone
		}
		return models.PatternStatusFaded

	default:
		if emerging {
			return promote(obs, config)
		}
		return models.PatternStatusNone
	}
}

// promote creates (or resurrects) a pattern and confirms it in the same pass when
// the stored history already satisfies confirmation.
func promote(obs Observation, config Config) models.PatternStatus {
	if confirmable(obs, config) {
		return models.PatternStatusConfirmed
	}
	return models.PatternStatusEmerging
}

func confirmable(obs Observation, config Config) bool {
	return obs.Confidence >= config.ConfirmationThreshold &&
		obs.Span >= config.minConfirmationSpan() &&
		obs.Support >= config.MinConfirmationSupport
}

func droppable(obs Observation, config Config) bool {
	return obs.EventsSinceSeen >= config.DropAfterEvents &&
		obs.SinceLastSeen >= config.dropAfterAge()
}
