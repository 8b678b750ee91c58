// Package feed reads and writes gateway event streams as JSON lines and
// replays them into an engine.
//
// Every line holds one event:
//
//	{"topic":"tick","time":"2024-01-02T09:00:01Z","data":{"symbol":"rb2101","exchange":"SHFE",...}}
//
// Blank lines and lines starting with '#' are ignored.
package feed

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"time"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"

	"tradecore/internal/bus"
	"tradecore/internal/model"
	"tradecore/internal/model/enum"
	"tradecore/pkg/exception"
)

// Source yields events until io.EOF.
type Source interface {
	Next() (bus.Event, error)
}

type record struct {
	Topic enum.Topic      `json:"topic"`
	Time  time.Time       `json:"time,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Decoder reads events from a JSON-lines stream.
type Decoder struct {
	r    *bufio.Reader
	line int
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Line returns the number of the line read last.
func (d *Decoder) Line() int {
	return d.line
}

// Next returns the next event. A line that cannot be decoded yields an error
// wrapping exception.ErrMalformedEvent and the decoder stays usable.
func (d *Decoder) Next() (bus.Event, error) {
	for {
		raw, err := d.r.ReadBytes('\n')
		if len(raw) == 0 && err != nil {
			if err == io.EOF {
				return bus.Event{}, io.EOF
			}
			return bus.Event{}, errors.Wrap(err, "read event line")
		}
		d.line++

		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 || raw[0] == '#' {
			continue
		}
		e, derr := Decode(raw)
		if derr != nil {
			return bus.Event{}, errors.Wrapf(derr, "line %d", d.line)
		}
		return e, nil
	}
}

// Decode parses one encoded event.
func Decode(line []byte) (bus.Event, error) {
	var rec record
	if err := sonic.Unmarshal(line, &rec); err != nil {
		return bus.Event{}, errors.Wrapf(exception.ErrMalformedEvent, "decode event: %v", err)
	}
	if !rec.Topic.IsAvailable() {
		return bus.Event{}, errors.Wrap(exception.ErrUnknownTopic, "decode event")
	}

	data, err := decodeData(rec.Topic, rec.Data)
	if err != nil {
		return bus.Event{}, errors.Wrapf(exception.ErrMalformedEvent, "decode %s payload: %v", rec.Topic, err)
	}
	return bus.Event{Topic: rec.Topic, Time: rec.Time, Data: data}, nil
}

func decodeData(topic enum.Topic, raw json.RawMessage) (any, error) {
	switch topic {
	case enum.TopicTick:
		return unmarshal[model.Tick](raw)
	case enum.TopicOrder:
		return unmarshal[model.Order](raw)
	case enum.TopicTrade:
		return unmarshal[model.Trade](raw)
	case enum.TopicPosition:
		return unmarshal[model.Position](raw)
	case enum.TopicAccount:
		return unmarshal[model.Account](raw)
	case enum.TopicContract:
		return unmarshal[model.Contract](raw)
	case enum.TopicBar:
		return unmarshal[model.Bar](raw)
	case enum.TopicLog:
		return unmarshal[model.LogData](raw)
	case enum.TopicError:
		return unmarshal[model.ErrorData](raw)
	case enum.TopicLast:
		return unmarshal[model.LastData](raw)
	case enum.TopicShared:
		return unmarshal[model.SharedData](raw)
	case enum.TopicInitFinished:
		if len(raw) == 0 {
			return model.InitData{Finished: true}, nil
		}
		return unmarshal[model.InitData](raw)
	default:
		return nil, nil
	}
}

func unmarshal[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, errors.New("missing data")
	}
	if err := sonic.Unmarshal(raw, &v); err != nil {
		return v, err
	}
	return v, nil
}

// Encoder writes events as JSON lines.
type Encoder struct {
	w io.Writer
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes one event. Pointer payloads are written as their values.
func (e *Encoder) Encode(ev bus.Event) error {
	line, err := Encode(ev)
	if err != nil {
		return err
	}
	if _, err := e.w.Write(append(line, '\n')); err != nil {
		return errors.Wrap(err, "write event line")
	}
	return nil
}

// Encode renders one event without the trailing newline.
func Encode(ev bus.Event) ([]byte, error) {
	if !ev.Topic.IsAvailable() {
		return nil, errors.Wrap(exception.ErrUnknownTopic, "encode event")
	}
	rec := record{Topic: ev.Topic, Time: ev.Time}
	if data := ev.Clone().Data; data != nil {
		raw, err := sonic.Marshal(data)
		if err != nil {
			return nil, errors.Wrapf(err, "encode %s payload", ev.Topic)
		}
		rec.Data = raw
	}
	line, err := sonic.Marshal(rec)
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s event", ev.Topic)
	}
	return line, nil
}
