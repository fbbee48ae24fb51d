// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tariff classifies instants into the Italian electricity
// time-of-use bands (fasce orarie) F1, F2 and F3.
//
//	F1  Monday-Friday 08:00-19:00
//	F2  Monday-Friday 07:00-08:00 and 19:00-23:00, Saturday 07:00-23:00
//	F3  every day 23:00-07:00, all of Sunday and national holidays
//
// Bands are evaluated in the location of the time passed in, so callers
// should convert to Europe/Rome (or whatever the meter's local time is)
// first.
package tariff

import (
	"fmt"
	"time"
)

// Band is a time-of-use band.
type Band int

const (
	F1 Band = iota + 1
	F2
	F3
)

// String returns "F1", "F2" or "F3".
func (b Band) String() string {
	switch b {
	case F1, F2, F3:
		return fmt.Sprintf("F%d", int(b))
	default:
		return "unknown"
	}
}

// fixedHolidays are the national holidays with a fixed date.
var fixedHolidays = []struct {
	month time.Month
	day   int
}{
	{time.January, 1},   // Capodanno
	{time.January, 6},   // Epifania
	{time.April, 25},    // Liberazione
	{time.May, 1},       // Festa del lavoro
	{time.June, 2},      // Festa della Repubblica
	{time.August, 15},   // Ferragosto
	{time.November, 1},  // Ognissanti
	{time.December, 8},  // Immacolata
	{time.December, 25}, // Natale
	{time.December, 26}, // Santo Stefano
}

// BandAt returns the band in effect at t.
func BandAt(t time.Time) Band {
	if t.Weekday() == time.Sunday || IsHoliday(t) {
		return F3
	}
	h := t.Hour()
	if h < 7 || h >= 23 {
		return F3
	}
	if t.Weekday() == time.Saturday {
		return F2
	}
	if h >= 8 && h < 19 {
		return F1
	}
	return F2
}

// IsHoliday reports whether t falls on a national holiday, Easter Monday
// included.
func IsHoliday(t time.Time) bool {
	y, m, d := t.Date()
	for _, h := range fixedHolidays {
		if h.month == m && h.day == d {
			return true
		}
	}
	em := EasterSunday(y, t.Location()).AddDate(0, 0, 1)
	return em.Month() == m && em.Day() == d
}

// EasterSunday returns midnight of Gregorian Easter Sunday of year in loc,
// computed with the anonymous Gregorian algorithm (Meeus/Jones/Butcher).
func EasterSunday(year int, loc *time.Location) time.Time {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, loc)
}
