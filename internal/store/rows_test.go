package store

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
)

func TestNormalizeValue_NonFiniteFloats(t *testing.T) {
	for _, v := range []any{math.NaN(), math.Inf(1), math.Inf(-1), float32(math.Inf(1)), pgtype.Numeric{NaN: true, Valid: true}} {
		if got := normalizeValue(v); got != nil {
			t.Errorf("%#v: expected nil, got %#v", v, got)
		}
	}
	if got := normalizeValue(2.5); got != 2.5 {
		t.Errorf("expected finite float to pass through, got %#v", got)
	}

	row := Row{"pl_rade": normalizeValue(math.NaN()), "pl_name": normalizeValue([]byte("K2-18 b"))}
	if _, err := json.Marshal(row); err != nil {
		t.Fatalf("normalized row must encode: %v", err)
	}
}
