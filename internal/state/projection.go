package state

import (
	"encoding/json"
	"fmt"

	"github.com/alanyoungcy/quadscalp/internal/domain"
)

// Message is the envelope broadcast to observers for a store event. Data is
// the slice of state the event touched, read after the mutation.
type Message struct {
	Type   domain.StateEventKind `json:"type"`
	Symbol string                `json:"symbol,omitempty"`
	Data   any                   `json:"data"`
}

// Message projects ev onto the current state.
func (s *Store) Message(ev domain.StateEvent) Message {
	msg := Message{Type: ev.Kind, Symbol: ev.Symbol}

	switch ev.Kind {
	case domain.EventTick:
		if t, ok := s.Tick(ev.Symbol); ok {
			msg.Data = t
		}
	case domain.EventBar:
		if bars := s.Bars(ev.Symbol); len(bars) > 0 {
			msg.Data = bars[len(bars)-1]
		}
	case domain.EventBarsReplaced:
		msg.Data = s.Bars(ev.Symbol)
	case domain.EventDepth:
		if d, ok := s.Depth(ev.Symbol); ok {
			msg.Data = d
		}
	case domain.EventAccount:
		msg.Data = s.Account()
	case domain.EventPositions:
		msg.Data = s.Positions()
	case domain.EventTrades:
		msg.Data = s.Trades()
	case domain.EventOrders:
		msg.Data = s.Orders()
	case domain.EventConnection:
		msg.Data = s.Connection()
	case domain.EventActiveSymbol:
		msg.Data = s.ActiveSymbol()
	case domain.EventSymbols:
		msg.Data = s.Symbols()
	}
	return msg
}

// EncodeMessage projects ev and marshals it to JSON.
func (s *Store) EncodeMessage(ev domain.StateEvent) ([]byte, error) {
	data, err := json.Marshal(s.Message(ev))
	if err != nil {
		return nil, fmt.Errorf("state: encode %s event: %w", ev.Kind, err)
	}
	return data, nil
}
