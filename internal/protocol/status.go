package protocol

// Status is the outcome code carried in every response header.
type Status int

const (
	// StatusUnknown is the zero value; it is never written to the wire.
	StatusUnknown Status = iota
	StatusOK
	StatusFileNotFound
	StatusError
	StatusInvalid
)

var statusNames = map[Status]string{
	StatusOK:           "OK",
	StatusFileNotFound: "FILE_NOT_FOUND",
	StatusError:        "ERROR",
	StatusInvalid:      "INVALID",
}

// String returns the wire name of the status, or "UNKNOWN".
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// Valid reports whether s may appear in a response header.
func (s Status) Valid() bool {
	_, ok := statusNames[s]
	return ok
}

// ParseStatus maps a wire token to a Status. Tokens are case-sensitive.
func ParseStatus(token string) (Status, bool) {
	for status, name := range statusNames {
		if name == token {
			return status, true
		}
	}
	return StatusUnknown, false
}
