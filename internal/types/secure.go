package types

const redactedPlaceholder = "***REDACTED***"

var redactedJSON = []byte(`"***REDACTED***"`)

// SecretString holds credentials (database URL, API keys, bot token) and
// renders as a placeholder through fmt and encoding/json so config dumps and
// structured logs never carry the plaintext.
type SecretString string

// String returns a redacted placeholder instead of the raw value.
func (s SecretString) String() string {
	return redactedPlaceholder
}

// MarshalJSON returns the redacted placeholder as a JSON string.
func (s SecretString) MarshalJSON() ([]byte, error) {
	return redactedJSON, nil
}

// Unmask returns the raw plaintext value of the secret.
func (s SecretString) Unmask() string {
	return string(s)
}

// IsSet reports whether a value was configured.
func (s SecretString) IsSet() bool {
	return s != ""
}
