package common

import (
	"strings"
	"unicode/utf8"
)

// NormalizeContent trims a message body and enforces 1..max characters.
func NormalizeContent(content string, max int) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", Invalid("message content cannot be empty")
	}
	if max > 0 && utf8.RuneCountInString(content) > max {
		return "", Invalid("message content exceeds %d characters", max)
	}
	return content, nil
}

func ValidateRequiredText(field, value string, max int) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", Invalid("%s is required", field)
	}
	if max > 0 && utf8.RuneCountInString(value) > max {
		return "", Invalid("%s must be at most %d characters", field, max)
	}
	return value, nil
}

func ValidateUserID(field string, id uint64) error {
	if id == 0 {
		return Invalid("%s is required", field)
	}
	return nil
}
