package features

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"revenue-forecaster/internal/common"
)

// WriteCSV writes the table with a leading period column, the revenue, every
// feature column and the target.
func WriteCSV(w io.Writer, t Table) error {
	cols := append([]string{common.ColRevenue}, common.FeatureColumns()...)
	cols = append(cols, common.ColTarget)

	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{"period"}, cols...)); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, r := range t.Rows {
		values, err := r.Vector(cols)
		if err != nil {
			return err
		}
		record := make([]string, 0, len(values)+1)
		record = append(record, r.Period.String())
		for _, v := range values {
			record = append(record, strconv.FormatFloat(v, 'g', -1, 64))
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write row %s: %w", r.Period, err)
		}
	}

	cw.Flush()
	return cw.Error()
}
