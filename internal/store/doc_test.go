package store

import (
	"errors"
	"testing"

	"github.com/SGman98/mafiabot/internal/mafia"
)

type fakeResult struct {
	n   int64
	err error
}

func (r fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r fakeResult) RowsAffected() (int64, error) { return r.n, r.err }

func TestRowsChanged(t *testing.T) {
	driverErr := errors.New("driver: rows affected unsupported")

	tests := []struct {
		name    string
		result  fakeResult
		want    bool
		wantErr error
	}{
		{"one row", fakeResult{n: 1}, true, nil},
		{"no rows", fakeResult{}, false, nil},
		{"driver failure", fakeResult{err: driverErr}, false, driverErr},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := rowsChanged(tt.result)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("changed = %v, want %v", got, tt.want)
			}
			if errors.Is(err, mafia.ErrConcurrencyConflict) || errors.Is(err, mafia.ErrNotFound) {
				t.Fatalf("driver failure reported as %v", err)
			}
		})
	}
}
