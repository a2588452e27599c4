package conversation

import (
	"errors"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

const (
	inputDateLayout = "2/1/2006"
	apiDateLayout   = "2006/01/02"
	maxAgeYears     = 150
)

var (
	ErrDateFormat     = errors.New("conversation: date must be DD/MM/YYYY")
	ErrDateInFuture   = errors.New("conversation: date is in the future")
	ErrDateInPast     = errors.New("conversation: date is in the past")
	ErrAgeUnrealistic = errors.New("conversation: age is not realistic")
)

// FullName is a parsed patient name.
type FullName struct {
	First   string
	Middle  string
	Surname string
}

// ParseFullName splits a typed name. Periods are spaced out, "none" tokens are
// dropped and every token is capitalised. Two tokens are first name and
// surname; with three or more the second token is the middle name and the
// rest form the surname.
func ParseFullName(input string) (FullName, bool) {
	spaced := strings.ReplaceAll(strings.TrimSpace(input), ".", ". ")
	var parts []string
	for _, p := range strings.Fields(spaced) {
		if strings.EqualFold(p, "none") {
			continue
		}
		parts = append(parts, capitalize(p))
	}
	if len(parts) < 2 {
		return FullName{}, false
	}
	name := FullName{First: parts[0]}
	if len(parts) == 2 {
		name.Surname = parts[1]
	} else {
		name.Middle = parts[1]
		name.Surname = strings.Join(parts[2:], " ")
	}
	return name, true
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}

// parseInputDate accepts DD/MM/YYYY or DD-MM-YYYY.
func parseInputDate(input string) (time.Time, error) {
	normalized := strings.ReplaceAll(strings.TrimSpace(input), "-", "/")
	d, err := time.Parse(inputDateLayout, normalized)
	if err != nil {
		return time.Time{}, ErrDateFormat
	}
	return d, nil
}

// civilDate drops the clock so dates compare by calendar day.
func civilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDOB validates a date of birth against today and returns it as YYYY/MM/DD.
func ParseDOB(input string, today time.Time) (string, error) {
	dob, err := parseInputDate(input)
	if err != nil {
		return "", err
	}
	now := civilDate(today)
	if dob.After(now) {
		return "", ErrDateInFuture
	}
	age := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		age--
	}
	if age < 0 || age > maxAgeYears {
		return "", ErrAgeUnrealistic
	}
	return dob.Format(apiDateLayout), nil
}

// ParseVisitDate accepts today or a later date and returns it as YYYY/MM/DD.
func ParseVisitDate(input string, today time.Time) (string, error) {
	visit, err := parseInputDate(input)
	if err != nil {
		return "", err
	}
	if visit.Before(civilDate(today)) {
		return "", ErrDateInPast
	}
	return visit.Format(apiDateLayout), nil
}

// ParseGender maps male, female and other to M, F and O.
func ParseGender(input string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "male":
		return "M", true
	case "female":
		return "F", true
	case "other":
		return "O", true
	}
	return "", false
}

// ValidZip reports whether s is exactly five digits.
func ValidZip(s string) bool {
	if len(s) != 5 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ValidMobile reports whether s is exactly ten digits.
func ValidMobile(s string) bool {
	if len(s) != 10 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Province is a city offered in the province prompt.
type Province struct {
	City    string
	Region  string
	Country string
}

const addressCountry = "Saudi Arabia"

var provinces = map[string]Province{
	"1": {City: "Riyadh", Region: "Riyadh Region", Country: addressCountry},
	"2": {City: "Jeddah", Region: "Makkah Region", Country: addressCountry},
	"3": {City: "Dammam", Region: "Eastern Province", Country: addressCountry},
	"4": {City: "Mecca", Region: "Makkah Region", Country: addressCountry},
	"5": {City: "Medina", Region: "Madinah Region", Country: addressCountry},
}

// ProvinceByOption resolves a reply of "1" to "5".
func ProvinceByOption(option string) (Province, bool) {
	p, ok := provinces[strings.TrimSpace(option)]
	return p, ok
}

// Relation is a family relationship and its backend code.
type Relation struct {
	Code string
	Name string
}

var relations = map[string]Relation{
	"1": {Code: "003", Name: "Mother"},
	"2": {Code: "004", Name: "Father"},
	"3": {Code: "006", Name: "Wife"},
	"4": {Code: "001", Name: "Brother"},
	"5": {Code: "002", Name: "Sister"},
}

// RelationByOption resolves a reply of "1" to "5".
func RelationByOption(option string) (Relation, bool) {
	r, ok := relations[strings.TrimSpace(option)]
	return r, ok
}

// ParseNationality accepts a single alphabetic word and title-cases it.
func ParseNationality(input string) (string, bool) {
	s := strings.TrimSpace(input)
	if s == "" {
		return "", false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return "", false
		}
	}
	return capitalize(s), true
}

// ParseBookingType maps the booking option buttons to H and W.
func ParseBookingType(input string) (string, bool) {
	switch strings.ToUpper(strings.TrimSpace(input)) {
	case "HOME COLLECTION":
		return "H", true
	case "WALK IN":
		return "W", true
	}
	return "", false
}

func isGreeting(text string) bool {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "hi", "hello":
		return true
	}
	return false
}

func isYes(text string) bool {
	return strings.EqualFold(strings.TrimSpace(text), "yes")
}

func isNo(text string) bool {
	return strings.EqualFold(strings.TrimSpace(text), "no")
}
