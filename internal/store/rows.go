package store

import (
	"math"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// Row is one record keyed by column name.
type Row map[string]any

// ResultSet is the ordered output of a query.
type ResultSet struct {
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// Len returns the number of rows.
func (r ResultSet) Len() int { return len(r.Rows) }

// Head returns at most n rows.
func Head(rows []Row, n int) []Row {
	if len(rows) <= n {
		return rows
	}
	return rows[:n]
}

// normalizeValue converts driver-specific values into plain JSON-friendly Go values.
// Non-finite floats become nil since JSON cannot carry them.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case float64:
		return finite(val)
	case float32:
		return finite(float64(val))
	case pgtype.Numeric:
		f, err := val.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return finite(f.Float64)
	case *big.Int:
		return val.String()
	case []byte:
		return string(val)
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	case [16]byte:
		return uuid.UUID(val).String()
	default:
		return v
	}
}

func finite(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return f
}
