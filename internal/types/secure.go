package types

const redactedPlaceholder = "***REDACTED***"

var redactedJSON = []byte(`"***REDACTED***"`)

// SecretString is a string that never prints or serializes its value.
// Config fields holding credentials (DATABASE_URL) use it so that dumping the
// config struct to a log line is safe.
//
// Call Unmask() only at the point where the plaintext is handed to a driver.
type SecretString string

// String returns the redacted placeholder.
func (s SecretString) String() string {
	return redactedPlaceholder
}

// MarshalJSON returns the redacted placeholder as a JSON string.
func (s SecretString) MarshalJSON() ([]byte, error) {
	return redactedJSON, nil
}

// Unmask returns the raw plaintext value.
func (s SecretString) Unmask() string {
	return string(s)
}

// IsEmpty reports whether the secret has no value.
func (s SecretString) IsEmpty() bool {
	return s == ""
}
