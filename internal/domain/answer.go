package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultSeparator joins the fields of a wire payload unless configured otherwise.
const DefaultSeparator = "|"

// Choice bounds for a valid answer.
const (
	MinChoice = 0
	MaxChoice = 3
)

// Answer is one device's submitted choice for one question.
// ReceivedAt is assigned by the store on commit, never taken from the client.
type Answer struct {
	DeviceID   string    `json:"device_id"`
	QuestionID string    `json:"question_id"`
	Choice     int       `json:"choice"`
	ReceivedAt time.Time `json:"received_at"`
}

// ParseAnswer decodes a wire payload of the form
// <device-address><sep><question-id><sep><choice>.
//
// The device address is split off at the first separator and the choice at the
// last one, so the question ID may itself contain the separator. The device
// address accepts hyphen- or colon-delimited hex octets and is canonicalized
// to lowercase colon-separated form.
func ParseAnswer(payload, sep string) (Answer, error) {
	first := strings.Index(payload, sep)
	if first < 0 {
		return Answer{}, fmt.Errorf("%w, got %q", ErrBadPayload, payload)
	}
	rawDevice, rest := payload[:first], payload[first+len(sep):]

	last := strings.LastIndex(rest, sep)
	if last < 0 {
		return Answer{}, fmt.Errorf("%w, got %q", ErrBadPayload, payload)
	}
	questionID := strings.TrimSpace(rest[:last])
	rawChoice := strings.TrimSpace(rest[last+len(sep):])

	deviceID, err := CanonicalDeviceID(rawDevice)
	if err != nil {
		return Answer{}, err
	}

	choice, err := strconv.Atoi(rawChoice)
	if err != nil || choice < MinChoice || choice > MaxChoice {
		return Answer{}, fmt.Errorf("%w: %q", ErrBadChoice, rawChoice)
	}

	return Answer{DeviceID: deviceID, QuestionID: questionID, Choice: choice}, nil
}

// Encode renders the answer back into its wire form. Round-trips with
// ParseAnswer as long as the device address contains no separator collisions.
func (a Answer) Encode(sep string) string {
	return a.DeviceID + sep + a.QuestionID + sep + strconv.Itoa(a.Choice)
}

func (a Answer) String() string {
	return fmt.Sprintf("Answer(device_id=%s, question_id=%s, choice=%d)", a.DeviceID, a.QuestionID, a.Choice)
}

// CanonicalDeviceID normalizes a hardware address to lowercase
// colon-separated hex-octet form. Input octets may be joined by hyphens or
// colons.
func CanonicalDeviceID(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	parts := strings.Split(strings.ReplaceAll(s, "-", ":"), ":")
	if len(parts) != 6 {
		return "", fmt.Errorf("%w: %q", ErrBadDeviceID, raw)
	}
	for i, part := range parts {
		if len(part) != 2 || !isHexOctet(part) {
			return "", fmt.Errorf("%w: %q", ErrBadDeviceID, raw)
		}
		parts[i] = strings.ToLower(part)
	}
	return strings.Join(parts, ":"), nil
}

func isHexOctet(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}
