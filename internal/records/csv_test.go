package records

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadCSV(t *testing.T) {
	input := "country,date,price,times_viewed\n" +
		"United Kingdom,2018-01-05,12.50,3\n" +
		"France,2018-02-10 08:00:00,7.25,1\n"

	recs, err := ReadCSV(context.Background(), strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, 2018, recs[0].Date.Year())
	assert.Equal(t, 12.5, recs[0].Price)
	assert.Equal(t, 7.25, recs[1].Price)
}

func TestReadCSV_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty input", ""},
		{"header only", "date,price\n"},
		{"missing date column", "day,price\n2018-01-01,1\n"},
		{"missing price column", "date,total\n2018-01-01,1\n"},
		{"bad date", "date,price\nyesterday,1\n"},
		{"bad price", "date,price\n2018-01-01,abc\n"},
		{"negative price", "date,price\n2018-01-01,-4\n"},
		{"short row", "date,price\n2018-01-01\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCSV(context.Background(), strings.NewReader(tt.input))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestCSVSource_Load(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.csv")
	require.NoError(t, os.WriteFile(path, []byte("date,price\n2018-01-05,10\n2018-03-01,20\n"), 0o600))

	recs, err := NewCSVSource(path).Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestCSVSource_MissingFile(t *testing.T) {
	_, err := NewCSVSource(filepath.Join(t.TempDir(), "nope.csv")).Load(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrValidation)
}
