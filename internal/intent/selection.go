package intent

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"bookline/agent/internal/calendar"
)

var numberWords = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4,
	"1": 1, "2": 2, "3": 3, "4": 4,
}

var ordinalWords = map[string]int{
	"first": 1, "second": 2, "third": 3, "fourth": 4,
}

// selection marker words: a number inside a sentence only selects when one
// of these accompanies it ("option two", "number 3").
var markerWords = map[string]bool{
	"option": true, "number": true, "choice": true, "slot": true,
}

// ParseMenuChoice extracts a 1..max menu selection. A bare number is only
// accepted as the exact whole utterance; inside a sentence a marker word or
// an ordinal is required. "j'ai 2 questions"-style sentences select nothing.
func ParseMenuChoice(norm string, max int) (int, bool) {
	norm = strings.TrimSpace(norm)
	if n, ok := numberWords[norm]; ok && n >= 1 && n <= max {
		return n, true
	}
	words := strings.Fields(norm)
	for i, w := range words {
		if n, ok := ordinalWords[w]; ok && n >= 1 && n <= max {
			return n, true
		}
		if markerWords[w] && i+1 < len(words) {
			if n, ok := numberWords[words[i+1]]; ok && n >= 1 && n <= max {
				return n, true
			}
		}
	}
	return 0, false
}

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
	"wednesday": time.Wednesday, "thursday": time.Thursday,
	"friday": time.Friday, "saturday": time.Saturday,
}

// timeRe matches an explicit clock time: "10:30", "3 pm", "at 3". A bare
// number with no colon, meridiem, or "at" is not a time.
var timeRe = regexp.MustCompile(`(?:\bat\s+(\d{1,2})(?::(\d{2}))?\s*(am|pm)?\b)|(?:\b(\d{1,2}):(\d{2})\s*(am|pm)?\b)|(?:\b(\d{1,2})\s*(am|pm)\b)`)

// DayTime is an extracted day+time phrase. Both parts must be present for a
// slot match; an isolated day or isolated time never selects.
type DayTime struct {
	Weekday time.Weekday
	Hour    int
	Minute  int
	HasDay  bool
	HasTime bool
	// Meridiem is true when am/pm was explicit, fixing the hour.
	Meridiem bool
}

// ParseDayTime extracts day and time mentions from normalized text.
func ParseDayTime(norm string) DayTime {
	var dt DayTime
	for _, w := range strings.Fields(norm) {
		if wd, ok := weekdays[w]; ok {
			dt.Weekday = wd
			dt.HasDay = true
			break
		}
	}
	m := timeRe.FindStringSubmatch(norm)
	if m == nil {
		return dt
	}
	var hourS, minS, mer string
	switch {
	case m[1] != "":
		hourS, minS, mer = m[1], m[2], m[3]
	case m[4] != "":
		hourS, minS, mer = m[4], m[5], m[6]
	default:
		hourS, mer = m[7], m[8]
	}
	hour, err := strconv.Atoi(hourS)
	if err != nil || hour > 23 {
		return dt
	}
	if mer == "pm" && hour < 12 {
		hour += 12
	}
	if mer == "am" && hour == 12 {
		hour = 0
	}
	dt.Hour = hour
	if minS != "" {
		dt.Minute, _ = strconv.Atoi(minS)
	}
	dt.HasTime = true
	dt.Meridiem = mer != ""
	return dt
}

// MatchSlot resolves a day+time phrase against the offered slots. Matching
// zero or more than one slot selects nothing.
func MatchSlot(norm string, slots []calendar.Slot) (int, bool) {
	dt := ParseDayTime(norm)
	if !dt.HasDay || !dt.HasTime {
		return 0, false
	}
	matched := -1
	count := 0
	for i, s := range slots {
		if s.Start.Weekday() != dt.Weekday {
			continue
		}
		if !hourMatches(dt, s.Start) {
			continue
		}
		if s.Start.Minute() != dt.Minute {
			continue
		}
		matched = i
		count++
	}
	if count != 1 {
		return 0, false
	}
	return matched, true
}

// hourMatches compares the spoken hour with the slot hour. Without an
// explicit meridiem an ambiguous "3" also matches 15:00.
func hourMatches(dt DayTime, start time.Time) bool {
	if start.Hour() == dt.Hour {
		return true
	}
	if !dt.Meridiem && dt.Hour < 12 && start.Hour() == dt.Hour+12 {
		return true
	}
	return false
}
