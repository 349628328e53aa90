package records

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRecordServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPSource_Load(t *testing.T) {
	srv := newRecordServer(t, http.StatusOK, `[{"date":"2019-01-03","price":100.5},{"date":"2019-02-01","price":20}]`)

	recs, err := NewHTTPSource(srv.URL, 5*time.Second).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, 100.5, recs[0].Price)
	assert.Equal(t, 2, int(recs[1].Date.Month()))
}

func TestHTTPSource_Errors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		validation bool
	}{
		{"server error", http.StatusInternalServerError, `{"error":"boom"}`, false},
		{"empty set", http.StatusOK, `[]`, true},
		{"bad date", http.StatusOK, `[{"date":"03/01/2019","price":1}]`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newRecordServer(t, tt.status, tt.body)
			_, err := NewHTTPSource(srv.URL, 5*time.Second).Load(context.Background())
			require.Error(t, err)
			if tt.validation {
				assert.ErrorIs(t, err, ErrValidation)
			} else {
				assert.NotErrorIs(t, err, ErrValidation)
			}
		})
	}
}
