package conversation

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrSlotElapsed means the chosen slot for today has already ended.
var ErrSlotElapsed = errors.New("conversation: slot has passed")

// visitLead is added to the slot start (or to now, inside a running slot).
const visitLead = 40 * time.Minute

// Slot is a one hour visit window, hours in 24h clock.
type Slot struct {
	Start int
	End   int
}

// Label renders the slot the way the slot templates show it, e.g. "9 AM to 10 AM".
func (s Slot) Label() string {
	return hourLabel(s.Start) + " to " + hourLabel(s.End)
}

func hourLabel(h int) string {
	suffix := "AM"
	if h >= 12 {
		suffix = "PM"
	}
	h12 := h % 12
	if h12 == 0 {
		h12 = 12
	}
	return fmt.Sprintf("%d %s", h12, suffix)
}

type period struct {
	firstHour int
	slots     int
}

var periods = map[string]period{
	"morning":   {firstHour: 7, slots: 5},
	"afternoon": {firstHour: 12, slots: 6},
	"evening":   {firstHour: 18, slots: 5},
}

func validPeriod(name string) bool {
	_, ok := periods[name]
	return ok
}

// SlotFor resolves the 1-indexed option within a period.
func SlotFor(periodName, option string) (Slot, bool) {
	p, ok := periods[strings.ToLower(strings.TrimSpace(periodName))]
	if !ok {
		return Slot{}, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(option))
	if err != nil || n < 1 || n > p.slots {
		return Slot{}, false
	}
	start := p.firstHour + n - 1
	return Slot{Start: start, End: start + 1}, true
}

// VisitTime returns the booked time as HH:MM. visitDate is YYYY/MM/DD in loc;
// now is converted to loc. For a visit today a future slot books start+40m,
// a running slot books now+40m and an ended slot returns ErrSlotElapsed.
func VisitTime(slot Slot, visitDate string, now time.Time, loc *time.Location) (string, error) {
	day, err := time.ParseInLocation(apiDateLayout, visitDate, loc)
	if err != nil {
		return "", fmt.Errorf("conversation: visit date %q: %w", visitDate, err)
	}
	now = now.In(loc)
	y, m, d := day.Date()
	start := time.Date(y, m, d, slot.Start, 0, 0, 0, loc)
	end := time.Date(y, m, d, slot.End, 0, 0, 0, loc)

	today := civilDate(now)
	switch visit := civilDate(day); {
	case visit.After(today):
		return start.Add(visitLead).Format("15:04"), nil
	case visit.Before(today):
		return "", ErrSlotElapsed
	}
	switch {
	case now.Before(start):
		return start.Add(visitLead).Format("15:04"), nil
	case !now.After(end):
		return now.Add(visitLead).Format("15:04"), nil
	}
	return "", ErrSlotElapsed
}
