package messaging

import (
	"errors"
	"strings"
)

const (
	channelPrefix = "whatsapp:"
	countryCode   = "+91"
)

// ErrInvalidFormat is returned when a sender id does not reduce to 10 digits.
var ErrInvalidFormat = errors.New("messaging: mobile number must be 10 digits")

// ToCanonical reduces a channel address ("whatsapp:+919876543210"), an E.164
// number or a bare 10 digit number to the 10 digit id used by the backend.
func ToCanonical(raw string) (string, error) {
	digits := strings.TrimSpace(raw)
	digits = strings.TrimPrefix(digits, channelPrefix)
	digits = strings.TrimPrefix(digits, countryCode)
	if len(digits) != 10 {
		return "", ErrInvalidFormat
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return "", ErrInvalidFormat
		}
	}
	return digits, nil
}

// ToChannelAddress returns the WhatsApp address for any accepted form of a number.
func ToChannelAddress(raw string) (string, error) {
	id, err := ToCanonical(raw)
	if err != nil {
		return "", err
	}
	return channelPrefix + countryCode + id, nil
}
