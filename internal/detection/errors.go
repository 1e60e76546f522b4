package detection

import "errors"

var (
	// ErrInvalidVendorName is returned when a vendor name normalizes to nothing.
	ErrInvalidVendorName = errors.New("invalid vendor name")
	// ErrMalformedInput is returned when a transaction is missing required data.
	ErrMalformedInput = errors.New("malformed input")
)
