package aws

import (
	"strings"
	"unicode"
)

// Column is a description of a field from a AWS usage report manifest file.
type Column struct {
	Category string `json:"category"`
	Name     string `json:"name"`
}

// AthenaName is the column name the Athena integration of cost and usage
// reports creates: the category and name in snake case, every upper case
// letter starting a new word. reservation/ReservationARN becomes
// reservation_reservation_a_r_n.
func (c Column) AthenaName() string {
	return snakeCase(c.Category) + "_" + snakeCase(c.Name)
}

func snakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		switch {
		case r == ':' || r == '.' || r == '/' || r == ' ':
			b.WriteRune('_')
		case unicode.IsUpper(r):
			if i > 0 {
				b.WriteRune('_')
			}
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Columns are a set of AWS Usage columns.
type Columns []Column
