package domain

import "testing"

func TestClassifyListingError(t *testing.T) {
	cases := []struct {
		name    string
		message string
		kind    ErrorKind
		cap     int
	}{
		{"empty message means vanished item", "", ErrorItemDoesNotExist, 0},
		{"bracketed cap pattern", "cannot create listing (318/320 listings)", ErrorCapExceeded, 320},
		{"short circuit cap message", "account has reached its listing cap", ErrorCapExceeded, 0},
		{"warning prefix", "Warning: item quality mismatch", ErrorInvalidItem, 0},
		{"invalid item", "item is invalid", ErrorInvalidItem, 0},
		{"zero value currencies", "listing currencies must not be zero", ErrorInvalidCurrencies, 0},
		{"cyclic currencies", "cyclic currencies are not allowed", ErrorInvalidCurrencies, 0},
		{"unrecognized", "something new the api started saying", ErrorUnknown, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			kind, cap := ClassifyListingError(tc.message)
			if kind != tc.kind {
				t.Fatalf("kind = %s, want %s", kind, tc.kind)
			}
			if cap != tc.cap {
				t.Fatalf("cap = %d, want %d", cap, tc.cap)
			}
		})
	}
}

func TestClassifyListingError_CapPatternWinsOverInvalid(t *testing.T) {
	// A message can match several predicates; the cap pattern is checked
	// first because it carries real numbers the limit store needs.
	kind, cap := ClassifyListingError("item is invalid (5/5 listings)")
	if kind != ErrorCapExceeded || cap != 5 {
		t.Fatalf("got %s/%d, want %s/5", kind, cap, ErrorCapExceeded)
	}
}
