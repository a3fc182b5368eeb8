package model

import "fmt"

const maxIdentifierLen = 64

// ValidateIdentifier checks a location or charger identifier against the
// allowed character set: lowercase letters, digits, '-' and '_'.
func ValidateIdentifier(id string) error {
	if id == "" {
		return fmt.Errorf("empty identifier: %w", ErrInvalidIdentifier)
	}
	if len(id) > maxIdentifierLen {
		return fmt.Errorf("identifier %q exceeds %d characters: %w", id, maxIdentifierLen, ErrInvalidIdentifier)
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_':
		default:
			return fmt.Errorf("illegal character %q in identifier %q: %w", r, id, ErrInvalidIdentifier)
		}
	}
	return nil
}
