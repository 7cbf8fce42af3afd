package fragment

import "fmt"

// ValidationError reports input a builder refuses to turn into SQL. It is
// returned by value, so match it with a value target:
//
//	var ve fragment.ValidationError
//	if errors.As(err, &ve) { ... }
type ValidationError struct {
	Field   string // Field/column name, or a positional label like "row 3"
	Value   string // The offending value, if any
	Message string // Human-readable error message
}

func (e ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}
