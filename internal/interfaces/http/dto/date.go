package dto

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Date is a calendar day, "2006-01-02" on the wire. The zero Date is null.
type Date struct {
	time.Time
}

func DateOf(t time.Time) Date {
	return Date{Time: t}
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.Format(time.DateOnly))
}

// UnmarshalJSON also takes RFC 3339 timestamps, keeping the calendar day
// in the timestamp's own offset.
func (d *Date) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(data), `"`)
	switch raw {
	case "", "null":
		d.Time = time.Time{}
		return nil
	}

	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		d.Time = t
		return nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return fmt.Errorf("invalid date %q: expected YYYY-MM-DD", raw)
	}
	y, m, day := t.Date()
	d.Time = time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
	return nil
}
