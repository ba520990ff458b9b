package domain

import (
	"regexp"
	"strconv"
	"strings"
)

// ErrorKind classifies a marketplace batch error message. Messages are an
// external, versioned contract with no structured alternative, so the
// rules below are string predicates evaluated in a fixed order.
type ErrorKind string

const (
	ErrorCapExceeded       ErrorKind = "cap_exceeded"
	ErrorInvalidItem       ErrorKind = "invalid_item"
	ErrorItemDoesNotExist  ErrorKind = "item_does_not_exist"
	ErrorInvalidCurrencies ErrorKind = "invalid_currencies"
	ErrorDuplicateListing  ErrorKind = "duplicate_listing"
	ErrorUnknown           ErrorKind = "unknown"
)

// CapShortCircuitMessage is the marketplace's fixed answer when it refuses
// a whole batch item without evaluating it because the cap is known to be
// reached. It carries no numbers, unlike the bracketed form.
const CapShortCircuitMessage = "account has reached its listing cap"

// capPattern matches the "(used/cap listings)" suffix the marketplace
// appends to cap errors, e.g. "cannot create listing (318/320 listings)".
var capPattern = regexp.MustCompile(`\((\d+)/(\d+) listings\)`)

// ClassifyListingError maps one marketplace error message to its kind.
// Rules are ordered; the first match wins:
//
//  1. empty message               -> ItemDoesNotExist (the API's convention
//     for "item vanished")
//  2. cap pattern or the fixed short-circuit message -> CapExceeded; the
//     second value of the bracketed form is returned as the parsed cap
//  3. "Warning:" prefix or "is invalid"              -> InvalidItem
//  4. mentions currencies                            -> InvalidCurrencies
//  5. anything else                                  -> Unknown
func ClassifyListingError(message string) (ErrorKind, int) {
	if message == "" {
		return ErrorItemDoesNotExist, 0
	}
	if m := capPattern.FindStringSubmatch(message); m != nil {
		cap, _ := strconv.Atoi(m[2])
		return ErrorCapExceeded, cap
	}
	lower := strings.ToLower(message)
	if lower == CapShortCircuitMessage {
		return ErrorCapExceeded, 0
	}
	if strings.HasPrefix(message, "Warning:") || strings.Contains(lower, "is invalid") {
		return ErrorInvalidItem, 0
	}
	if strings.Contains(lower, "currencies") {
		return ErrorInvalidCurrencies, 0
	}
	return ErrorUnknown, 0
}
