package telemetry

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	pkgerrors "clickchain/pkg/errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

var validate = validator.New()

// Rejection records an event excluded from the batch
type Rejection struct {
	Index  int       `json:"index"`
	Type   EventType `json:"type"`
	Reason string    `json:"reason"`
	Err    error     `json:"-"`
}

// Batch is the output of a normalization run
type Batch struct {
	Events   []LogEvent
	Rejected []Rejection
}

// Normalizer validates and classifies raw log entries
type Normalizer struct {
	logger *zap.Logger
}

// NewNormalizer creates a normalizer. A nil logger discards output.
func NewNormalizer(logger *zap.Logger) *Normalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{logger: logger}
}

// Normalize parses timestamps and decodes payloads. Events whose timestamp
// cannot be parsed are rejected without affecting the rest of the batch.
// Survivors are returned in ascending timestamp order, ties keeping input order.
func (n *Normalizer) Normalize(raws []RawEvent) Batch {
	batch := Batch{
		Events:   make([]LogEvent, 0, len(raws)),
		Rejected: make([]Rejection, 0),
	}

	for i, raw := range raws {
		eventType := EventType(strings.TrimSpace(raw.Type))

		ts, err := ParseTime(raw.Timestamp)
		if err != nil {
			appErr := pkgerrors.NewMalformedTimestampError(i, string(raw.Timestamp), err)
			batch.Rejected = append(batch.Rejected, Rejection{
				Index:  i,
				Type:   eventType,
				Reason: appErr.Message,
				Err:    appErr,
			})
			n.logger.Warn("Rejected event with malformed timestamp",
				zap.Int("index", i),
				zap.String("type", string(eventType)),
				zap.String("timestamp", string(raw.Timestamp)),
			)
			continue
		}

		if err := validate.Struct(raw); err != nil {
			batch.Rejected = append(batch.Rejected, Rejection{
				Index:  i,
				Type:   eventType,
				Reason: "event type is required",
				Err:    pkgerrors.NewValidationError("invalid event").WithCause(err),
			})
			n.logger.Warn("Rejected invalid event", zap.Int("index", i), zap.Error(err))
			continue
		}

		received, err := ParseTime(raw.ReceivedAt)
		if err != nil {
			received = time.Time{}
		}

		batch.Events = append(batch.Events, LogEvent{
			Index:      i,
			Type:       eventType,
			Timestamp:  ts,
			ReceivedAt: received,
			Payload:    DecodePayload(eventType, raw.Data),
			Data:       raw.Data,
		})
	}

	sort.SliceStable(batch.Events, func(a, b int) bool {
		return batch.Events[a].Timestamp.Before(batch.Events[b].Timestamp)
	})

	if len(batch.Rejected) > 0 {
		n.logger.Info("Normalized event batch",
			zap.Int("accepted", len(batch.Events)),
			zap.Int("rejected", len(batch.Rejected)),
		)
	}

	return batch
}

// ParseTime parses an RFC 3339 timestamp or a count of epoch milliseconds.
func ParseTime(raw RawTime) (time.Time, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" {
		return time.Time{}, pkgerrors.NewValidationError("timestamp is empty")
	}

	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}

	ms, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return time.Time{}, err
	}
	if math.IsNaN(ms) || math.IsInf(ms, 0) {
		return time.Time{}, pkgerrors.NewValidationError("timestamp is not finite")
	}
	return time.UnixMilli(int64(ms)).UTC(), nil
}
