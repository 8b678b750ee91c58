package enum

import "strconv"

// Direction long, short
type Direction uint8

const (
	_direction_beg Direction = iota
	DirectionLong
	DirectionShort
	_direction_end
)

var directionNames = [...]string{
	DirectionLong:  "LONG",
	DirectionShort: "SHORT",
}

func (d Direction) IsAvailable() bool {
	return d > _direction_beg && d < _direction_end
}

// Opposite returns the direction a close order of d settles against.
func (d Direction) Opposite() Direction {
	switch d {
	case DirectionLong:
		return DirectionShort
	case DirectionShort:
		return DirectionLong
	default:
		return d
	}
}

func (d Direction) String() string {
	if !d.IsAvailable() {
		return "UNKNOWN"
	}
	return directionNames[d]
}

func (d Direction) MarshalText() ([]byte, error) {
	return marshalName(d.IsAvailable(), d.String(), "direction", uint8(d))
}

func (d *Direction) UnmarshalText(b []byte) error {
	v, err := parseName(directionNames[:], b, "direction")
	if err != nil {
		return err
	}
	*d = Direction(v)
	return nil
}

// Offset open, close, close today, close yesterday
type Offset uint8

const (
	_offset_beg Offset = iota
	OffsetNone
	OffsetOpen
	OffsetClose
	OffsetCloseToday
	OffsetCloseYesterday
	_offset_end
)

var offsetNames = [...]string{
	OffsetNone:           "NONE",
	OffsetOpen:           "OPEN",
	OffsetClose:          "CLOSE",
	OffsetCloseToday:     "CLOSETODAY",
	OffsetCloseYesterday: "CLOSEYESTERDAY",
}

func (o Offset) IsAvailable() bool {
	return o > _offset_beg && o < _offset_end
}

// IsClose reports whether the offset belongs to the close family.
func (o Offset) IsClose() bool {
	return o == OffsetClose || o == OffsetCloseToday || o == OffsetCloseYesterday
}

func (o Offset) String() string {
	if !o.IsAvailable() {
		return "UNKNOWN"
	}
	return offsetNames[o]
}

func (o Offset) MarshalText() ([]byte, error) {
	return marshalName(o.IsAvailable(), o.String(), "offset", uint8(o))
}

func (o *Offset) UnmarshalText(b []byte) error {
	v, err := parseName(offsetNames[:], b, "offset")
	if err != nil {
		return err
	}
	*o = Offset(v)
	return nil
}

// Status submitting, not traded, part traded, all traded, cancelled, rejected
type Status uint8

const (
	_status_beg Status = iota
	StatusSubmitting
	StatusNotTraded
	StatusPartTraded
	StatusAllTraded
	StatusCancelled
	StatusRejected
	_status_end
)

var statusNames = [...]string{
	StatusSubmitting: "SUBMITTING",
	StatusNotTraded:  "NOTTRADED",
	StatusPartTraded: "PARTTRADED",
	StatusAllTraded:  "ALLTRADED",
	StatusCancelled:  "CANCELLED",
	StatusRejected:   "REJECTED",
}

func (s Status) IsAvailable() bool {
	return s > _status_beg && s < _status_end
}

// IsActive reports whether an order in this status can still trade.
func (s Status) IsActive() bool {
	switch s {
	case StatusSubmitting, StatusNotTraded, StatusPartTraded:
		return true
	default:
		return false
	}
}

func (s Status) String() string {
	if !s.IsAvailable() {
		return "UNKNOWN"
	}
	return statusNames[s]
}

func (s Status) MarshalText() ([]byte, error) {
	return marshalName(s.IsAvailable(), s.String(), "status", uint8(s))
}

func (s *Status) UnmarshalText(b []byte) error {
	v, err := parseName(statusNames[:], b, "status")
	if err != nil {
		return err
	}
	*s = Status(v)
	return nil
}

// OrderType limit, market, stop, FAK, FOK
type OrderType uint8

const (
	_order_type_beg OrderType = iota
	OrderTypeLimit
	OrderTypeMarket
	OrderTypeStop
	OrderTypeFAK
	OrderTypeFOK
	_order_type_end
)

var orderTypeNames = [...]string{
	OrderTypeLimit:  "LIMIT",
	OrderTypeMarket: "MARKET",
	OrderTypeStop:   "STOP",
	OrderTypeFAK:    "FAK",
	OrderTypeFOK:    "FOK",
}

func (t OrderType) IsAvailable() bool {
	return t > _order_type_beg && t < _order_type_end
}

func (t OrderType) String() string {
	if !t.IsAvailable() {
		return "UNKNOWN"
	}
	return orderTypeNames[t]
}

func (t OrderType) MarshalText() ([]byte, error) {
	return marshalName(t.IsAvailable(), t.String(), "order type", uint8(t))
}

func (t *OrderType) UnmarshalText(b []byte) error {
	v, err := parseName(orderTypeNames[:], b, "order type")
	if err != nil {
		return err
	}
	*t = OrderType(v)
	return nil
}

// Interval is a bar width in minutes.
type Interval int

const (
	Interval1m  Interval = 1
	Interval3m  Interval = 3
	Interval5m  Interval = 5
	Interval15m Interval = 15
	Interval30m Interval = 30
	Interval1h  Interval = 60
)

func (i Interval) IsAvailable() bool {
	return i > 0 && i <= 24*60
}

func (i Interval) String() string {
	return strconv.Itoa(int(i)) + "m"
}
