package models

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

const (
	DateLayout      = "2006-01-02"
	naiveLayout     = "2006-01-02T15:04:05"
	naiveLayoutFrac = "2006-01-02T15:04:05.999999999"
	spaceLayout     = "2006-01-02 15:04:05.999999999"
	spaceZoneLayout = "2006-01-02 15:04:05.999999999Z07:00"
	spaceZoneShort  = "2006-01-02 15:04:05.999999999Z07"
)

// DateTime - отметка времени из бэкенда. Нераспознанное значение декодируется
// без ошибки, но Valid() == false.
type DateTime struct {
	t        time.Time
	raw      string
	valid    bool
	dateOnly bool
	naive    bool
}

func ParseDateTime(s string) DateTime {
	s = strings.TrimSpace(s)
	d := DateTime{raw: s}
	if s == "" {
		return d
	}

	if t, err := time.Parse(DateLayout, s); err == nil {
		d.t, d.valid, d.dateOnly = t, true, true
		return d
	}
	for _, layout := range []string{time.RFC3339Nano, spaceZoneLayout, spaceZoneShort} {
		if t, err := time.Parse(layout, s); err == nil {
			d.t, d.valid = t, true
			return d
		}
	}
	for _, layout := range []string{naiveLayout, naiveLayoutFrac, spaceLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			d.t, d.valid, d.naive = t, true, true
			return d
		}
	}
	return d
}

func NewDateTime(t time.Time) DateTime {
	return DateTime{t: t, valid: true}
}

// NewDate - значение только с датой.
func NewDate(year int, month time.Month, day int) DateTime {
	return DateTime{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC), valid: true, dateOnly: true}
}

func (d DateTime) Valid() bool    { return d.valid }
func (d DateTime) DateOnly() bool { return d.dateOnly }
func (d DateTime) Time() time.Time {
	return d.t
}

// DateKey приводит к YYYY-MM-DD. Даты и время без зоны остаются как есть,
// значения с зоной сначала переводятся в loc.
func (d DateTime) DateKey(loc *time.Location) string {
	if !d.valid {
		return ""
	}
	if d.dateOnly || d.naive || loc == nil {
		return d.t.Format(DateLayout)
	}
	return d.t.In(loc).Format(DateLayout)
}

// ShiftDays сдвигает на целые дни, сохраняя время суток и смещение.
func (d DateTime) ShiftDays(days int) DateTime {
	if !d.valid {
		return d
	}
	out := d
	out.t = d.t.AddDate(0, 0, days)
	out.raw = ""
	return out
}

func (d DateTime) String() string {
	if !d.valid {
		return d.raw
	}
	switch {
	case d.dateOnly:
		return d.t.Format(DateLayout)
	case d.naive:
		return d.t.Format(naiveLayoutFrac)
	default:
		return d.t.Format(time.RFC3339Nano)
	}
}

func (d DateTime) MarshalJSON() ([]byte, error) {
	if !d.valid && d.raw == "" {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

func (d *DateTime) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*d = DateTime{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		// не строка: сохраняем как невалидное значение
		*d = DateTime{raw: string(b)}
		return nil
	}
	*d = ParseDateTime(s)
	return nil
}

func CivilDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, strings.TrimSpace(s))
}

// DaysBetween считает календарные дни между двумя ключами YYYY-MM-DD.
func DaysBetween(fromKey, toKey string) (int, error) {
	from, err := CivilDate(fromKey)
	if err != nil {
		return 0, err
	}
	to, err := CivilDate(toKey)
	if err != nil {
		return 0, err
	}
	return int(to.Sub(from).Hours() / 24), nil
}
