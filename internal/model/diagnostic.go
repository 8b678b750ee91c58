package model

import (
	"time"

	"github.com/google/uuid"

	"tradecore/internal/model/enum"
)

// LogData is a log line pushed by the gateway.
type LogData struct {
	Message  string    `json:"message"`
	Datetime time.Time `json:"datetime"`
}

// ErrorData is an error pushed by the gateway.
type ErrorData struct {
	Code     int       `json:"code"`
	Message  string    `json:"message"`
	Datetime time.Time `json:"datetime"`
}

// InitData marks the gateway finishing its start-up queries.
type InitData struct {
	Finished bool `json:"finished"`
}

// Category classifies entries in the recorder's error and warning logs.
type Category uint8

const (
	CategoryGateway Category = iota
	CategoryMalformedEvent
	CategoryReconcileAnomaly
	CategoryExtensionFailure
	CategoryMisconfiguration
)

func (c Category) String() string {
	switch c {
	case CategoryGateway:
		return "gateway"
	case CategoryMalformedEvent:
		return "malformed_event"
	case CategoryReconcileAnomaly:
		return "reconcile_anomaly"
	case CategoryExtensionFailure:
		return "extension_failure"
	case CategoryMisconfiguration:
		return "misconfiguration"
	default:
		return "unknown"
	}
}

// Entry is one timestamped record in the error or warning log.
type Entry struct {
	ID       uuid.UUID
	Time     time.Time
	Category Category
	Topic    enum.Topic
	// Source names the extension for extension failures and misconfigurations.
	Source  string
	Message string
	Code    int
}

// NewEntry stamps a new entry with a random id.
func NewEntry(now time.Time, category Category, topic enum.Topic, source, message string) Entry {
	return Entry{
		ID:       uuid.New(),
		Time:     now,
		Category: category,
		Topic:    topic,
		Source:   source,
		Message:  message,
	}
}
