package sportsdb

import (
	sonic "github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"

	"github.com/riskibarqy/scoreboard/internal/domain/event"
)

// eventList tolerates the provider's envelope quirks: the array field may be
// null, missing or a non-array scalar, all of which decode to an empty list.
type eventList []event.Raw

func (l *eventList) UnmarshalJSON(data []byte) error {
	var items []event.Raw
	if err := sonic.Unmarshal(data, &items); err != nil {
		*l = nil
		return nil
	}
	*l = items
	return nil
}

// eventsEnvelope covers both response shapes: v1 endpoints wrap records in
// "events", the v2 livescore endpoint in "livescore".
type eventsEnvelope struct {
	Events    eventList `json:"events"`
	Livescore eventList `json:"livescore"`
}

func decodeEvents(raw []byte) ([]event.Raw, error) {
	var envelope eventsEnvelope
	if err := sonic.Unmarshal(raw, &envelope); err != nil {
		return nil, crerr.Wrap(err, "decode provider payload")
	}
	if len(envelope.Events) > 0 {
		return envelope.Events, nil
	}
	return envelope.Livescore, nil
}
