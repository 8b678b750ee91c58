package enum

// Topic is the fixed set of event channels a gateway can publish on.
type Topic uint8

const (
	_topic_beg Topic = iota
	TopicTick
	TopicOrder
	TopicTrade
	TopicPosition
	TopicAccount
	TopicContract
	TopicBar
	TopicLog
	TopicError
	TopicLast
	TopicShared
	TopicInitFinished
	TopicTimer
	_topic_end
)

var topicNames = [...]string{
	TopicTick:         "tick",
	TopicOrder:        "order",
	TopicTrade:        "trade",
	TopicPosition:     "position",
	TopicAccount:      "account",
	TopicContract:     "contract",
	TopicBar:          "bar",
	TopicLog:          "log",
	TopicError:        "error",
	TopicLast:         "last",
	TopicShared:       "shared",
	TopicInitFinished: "init_finished",
	TopicTimer:        "timer",
}

func (t Topic) IsAvailable() bool {
	return t > _topic_beg && t < _topic_end
}

// Topics returns every available topic in declaration order.
func Topics() []Topic {
	out := make([]Topic, 0, int(_topic_end)-1)
	for t := _topic_beg + 1; t < _topic_end; t++ {
		out = append(out, t)
	}
	return out
}

func (t Topic) String() string {
	if !t.IsAvailable() {
		return "unknown"
	}
	return topicNames[t]
}

func (t Topic) MarshalText() ([]byte, error) {
	return marshalName(t.IsAvailable(), t.String(), "topic", uint8(t))
}

func (t *Topic) UnmarshalText(b []byte) error {
	v, err := parseName(topicNames[:], b, "topic")
	if err != nil {
		return err
	}
	*t = Topic(v)
	return nil
}
