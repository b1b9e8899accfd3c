package db

import (
	"encoding/base64"
	"strings"

	"snipper/internal/types"
)

const cursorPrefix = "us1:"

// EncodeCursor returns the opaque resume position after userID. Callers must
// treat the result as an uninterpreted string.
func EncodeCursor(userID string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(cursorPrefix + userID))
}

// DecodeCursor returns the user id a cursor resumes after. The empty cursor
// decodes to "" (start of the set).
func DecodeCursor(cursor string) (string, error) {
	if cursor == "" {
		return "", nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return "", types.NewAppError(types.ErrCodeValidationInvalidCursor, "cursor is not valid", err)
	}
	userID, ok := strings.CutPrefix(string(raw), cursorPrefix)
	if !ok || userID == "" {
		return "", types.NewAppError(types.ErrCodeValidationInvalidCursor, "cursor is not valid", nil)
	}
	return userID, nil
}
