// Package calendar does business-day arithmetic in the shop's time zone.
package calendar

import (
	"fmt"
	"time"
	_ "time/tzdata"
)

// DefaultZone is the operating time zone when none is configured.
const DefaultZone = "America/New_York"

// Calendar converts instants to calendar dates in one fixed zone.
type Calendar struct {
	loc *time.Location
}

// New loads zone. An empty zone means DefaultZone.
func New(zone string) (Calendar, error) {
	if zone == "" {
		zone = DefaultZone
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return Calendar{}, fmt.Errorf("load business time zone %q: %w", zone, err)
	}
	return Calendar{loc: loc}, nil
}

// InLocation builds a calendar for an already loaded location.
func InLocation(loc *time.Location) Calendar {
	return Calendar{loc: loc}
}

// Location returns the operating zone.
func (c Calendar) Location() *time.Location {
	if c.loc == nil {
		return time.UTC
	}
	return c.loc
}

func (c Calendar) date(t time.Time) time.Time {
	local := t.In(c.Location())
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

// BusinessDaysBetween counts Monday to Friday dates strictly after start's
// date up to and including end's date. It is 0 when start is on or after end.
func (c Calendar) BusinessDaysBetween(start, end time.Time) int {
	from := c.date(start)
	to := c.date(end)
	if !from.Before(to) {
		return 0
	}

	days := int(to.Sub(from).Hours() / 24)
	count := (days / 7) * 5
	cur := from.AddDate(0, 0, (days/7)*7)
	for cur.Before(to) {
		cur = cur.AddDate(0, 0, 1)
		if wd := cur.Weekday(); wd != time.Saturday && wd != time.Sunday {
			count++
		}
	}
	return count
}

// BusinessDaysSince is BusinessDaysBetween(t, now), or nil when t is nil.
func (c Calendar) BusinessDaysSince(t *time.Time, now time.Time) *int {
	if t == nil || t.IsZero() {
		return nil
	}
	n := c.BusinessDaysBetween(*t, now)
	return &n
}

// ApproxBusinessDays estimates business days from a calendar-day count.
func ApproxBusinessDays(calendarDays int) int {
	if calendarDays <= 0 {
		return 0
	}
	weeks := calendarDays / 7
	rem := calendarDays % 7
	return weeks*5 + min(rem, 5)
}

// CalendarDaysSince is floor((now - t) / 24h), or 0 for a zero t.
func CalendarDaysSince(t, now time.Time) int {
	if t.IsZero() {
		return 0
	}
	return int(now.Sub(t).Hours() / 24)
}
