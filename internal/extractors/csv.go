package extractors

import (
	"bytes"
	"encoding/csv"
	"io"

	"contactminer/internal/model"
)

// ExtractCSV parses CSV bytes into rows and builds cards the same way
// ExtractXLSX does. No third-party CSV library appears
// anywhere in the retrieval pack — every repo that reads CSV uses
// encoding/csv, so this matches the pack's own convention.
func ExtractCSV(data []byte) ([]model.Card, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1 // tolerate ragged rows rather than failing the whole file

	var rows [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}
		rows = append(rows, rec)
	}

	return cardsFromRows(rows), nil
}
