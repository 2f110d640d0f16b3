package distinfo

import (
	"encoding/csv"
	"fmt"
	"io"
)

// parseRecordCSV reads a RECORD file's rows. Each row has exactly three
// columns: path, hash (possibly empty), size (possibly empty).
func parseRecordCSV(r io.Reader) ([]RawRecordLine, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 3
	cr.ReuseRecord = true

	var lines []RawRecordLine

	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}

		if err != nil {
			return nil, err
		}

		if len(row) != 3 {
			return nil, fmt.Errorf("expected 3 columns, got %d", len(row))
		}

		lines = append(lines, RawRecordLine{
			Path: row[0],
			Hash: row[1],
			Size: row[2],
		})
	}

	return lines, nil
}
