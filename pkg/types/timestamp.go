package types

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/araddon/dateparse"
	"github.com/pkg/errors"
)

// Timestamp is a time.Time that accepts the zone-less ISO timestamps the backend
// emits ("2024-05-01T10:00:00.123456") as well as RFC3339. Zone-less values
// are read as UTC.
type Timestamp struct {
	time.Time
}

func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t}
}

// ParseTimestamp parses s with the same rules as UnmarshalJSON.
func ParseTimestamp(s string) (Timestamp, error) {
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return Timestamp{}, errors.Wrapf(err, "invalid timestamp %q", s)
	}
	return Timestamp{Time: t}, nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.Format(time.RFC3339Nano))
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*t = Timestamp{}
		return nil
	}

	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return errors.Wrap(err, "timestamp must be a string")
	}
	if s == "" {
		*t = Timestamp{}
		return nil
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t Timestamp) MarshalYAML() (interface{}, error) {
	if t.IsZero() {
		return nil, nil
	}
	return t.Time.Format(time.RFC3339Nano), nil
}
