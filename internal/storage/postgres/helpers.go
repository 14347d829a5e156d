package postgres

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	gateway "github.com/eugener/aigateway/internal"
)

// notFoundErr translates pgx.ErrNoRows to gateway.ErrNotFound.
func notFoundErr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return gateway.ErrNotFound
	}
	return err
}

func checkRowsAffected(n int64, entity string) error {
	if n == 0 {
		return fmt.Errorf("%s: %w", entity, gateway.ErrNotFound)
	}
	return nil
}

// marshalJSON mirrors storage/sqlite's helper: nil or an empty string slice
// becomes SQL NULL (no value configured), everything else is a JSON array.
func marshalJSON(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	if s, ok := v.([]string); ok && len(s) == 0 {
		return nil, nil
	}
	return json.Marshal(v)
}

func unmarshalStringSlice(b []byte) ([]string, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var s []string
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("unmarshal string slice: %w", err)
	}
	return s, nil
}
