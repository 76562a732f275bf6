package domain

import "errors"

var (
	// ErrBadPayload is returned when an inbound payload has fewer than two separators.
	ErrBadPayload = errors.New("expected payload in format <device-address><sep><question-id><sep><choice>")
	// ErrBadDeviceID is returned when the device address cannot be canonicalized.
	ErrBadDeviceID = errors.New("malformed device address")
	// ErrBadChoice is returned when the choice is not an integer in the allowed set.
	ErrBadChoice = errors.New("choice outside the allowed set")
	// ErrBankInconsistent indicates a question bank failed its consistency check.
	ErrBankInconsistent = errors.New("question bank is inconsistent")
	// ErrDuplicateQuestion indicates the same question ID appears twice in a bank.
	ErrDuplicateQuestion = errors.New("duplicate question id in bank")
)
