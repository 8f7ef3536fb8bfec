package tools

import "encoding/json"

func ok() ValidationResult { return ValidationResult{Valid: true} }

func invalid(errs ...string) ValidationResult {
	return ValidationResult{Valid: false, Errors: errs}
}

// decodeArgs unmarshals args into dst, returning a ValidationResult
// suitable for Validate's return value on failure.
func decodeArgs(args json.RawMessage, dst any) (ValidationResult, bool) {
	if len(args) == 0 {
		return invalid("arguments are required"), false
	}
	if err := json.Unmarshal(args, dst); err != nil {
		return invalid("malformed arguments: " + err.Error()), false
	}
	return ValidationResult{}, true
}

func requireNonEmpty(field, value string) []string {
	if value == "" {
		return []string{field + " is required"}
	}
	return nil
}
