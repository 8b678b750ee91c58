package bus

import (
	"time"

	"tradecore/internal/model"
	"tradecore/internal/model/enum"
)

// Event is the unit passed through the bus. Data holds one payload value from
// package model, matching Topic; timer events carry no data.
type Event struct {
	Topic enum.Topic
	Seq   uint64
	Time  time.Time
	Data  any
}

// NewEvent wraps a payload for a topic.
func NewEvent(topic enum.Topic, data any) Event {
	return Event{Topic: topic, Data: data}
}

// Clone returns an event that shares no mutable state with e.
func (e Event) Clone() Event {
	switch v := e.Data.(type) {
	case model.SharedData:
		e.Data = v.Clone()
	case *model.SharedData:
		if v != nil {
			e.Data = v.Clone()
		}
	case *model.Tick:
		if v != nil {
			e.Data = *v
		}
	case *model.Order:
		if v != nil {
			e.Data = *v
		}
	case *model.Trade:
		if v != nil {
			e.Data = *v
		}
	case *model.Position:
		if v != nil {
			e.Data = *v
		}
	case *model.Account:
		if v != nil {
			e.Data = *v
		}
	case *model.Contract:
		if v != nil {
			e.Data = *v
		}
	}
	return e
}

// LocalSymbol returns the instrument the payload is about, if any.
func (e Event) LocalSymbol() (string, bool) {
	var key string
	switch v := e.Data.(type) {
	case model.Tick:
		key = v.Key()
	case model.Bar:
		key = v.LocalSymbol
	case model.Order:
		key = v.Key()
	case model.Trade:
		key = v.Key()
	case model.Position:
		key = v.Key()
	case model.Contract:
		key = v.Key()
	case model.LastData:
		key = v.Key()
	case model.SharedData:
		key = v.LocalSymbol
	default:
		return "", false
	}
	return key, key != ""
}
