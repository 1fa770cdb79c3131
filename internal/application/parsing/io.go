package parsing

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/turtacn/sigparse/internal/domain/instruction"
	"github.com/turtacn/sigparse/pkg/errors"
)

// InputFormat is the layout of a batch input file.
type InputFormat string

const (
	// InputText holds one instruction per line.
	InputText InputFormat = "txt"
	// InputCSV has a header row with the columns rowid and di.
	InputCSV InputFormat = "csv"
)

// Column names of the CSV input layout.
const (
	ColumnRowID = "rowid"
	ColumnText  = "di"
)

// InputFormatFromPath derives the input layout from a file extension.
func InputFormatFromPath(path string) (InputFormat, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt":
		return InputText, nil
	case ".csv":
		return InputCSV, nil
	}
	return "", errors.Newf(errors.CodeInvalidParam, "input file %s must be .txt or .csv", path)
}

// ReadInputs decodes a batch. Text lines are trimmed; a text input gets
// row-index ids when parsed. CSV rows keep their rowid as id.
func ReadInputs(r io.Reader, format InputFormat) ([]Input, error) {
	switch format {
	case InputText:
		return readTextInputs(r)
	case InputCSV:
		return readCSVInputs(r)
	}
	return nil, errors.Newf(errors.CodeInvalidParam, "unsupported input format %q", format)
}

func readTextInputs(r io.Reader) ([]Input, error) {
	var out []Input
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		out = append(out, Input{Text: strings.TrimSpace(sc.Text())})
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidParam, "reading text input")
	}
	return out, nil
}

func readCSVInputs(r io.Reader) ([]Input, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidParam, "reading csv header")
	}
	idCol, textCol := -1, -1
	for i, h := range header {
		switch strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")) {
		case ColumnRowID:
			idCol = i
		case ColumnText:
			textCol = i
		}
	}
	if idCol < 0 || textCol < 0 || len(header) != 2 {
		return nil, errors.Newf(errors.CodeInvalidParam,
			"input csv must have columns %q and %q, got %v", ColumnRowID, ColumnText, header)
	}

	var out []Input
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeInvalidParam, "reading csv row")
		}
		if len(row) != 2 {
			return nil, errors.Newf(errors.CodeInvalidParam, "csv line %d: expected 2 fields, got %d", line, len(row))
		}
		out = append(out, Input{ID: instruction.Str(row[idCol]), Text: row[textCol]})
	}
	return out, nil
}

// WriteCSV writes a header row followed by one row per record.
func WriteCSV(w io.Writer, results []*instruction.StructuredInstruction) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(instruction.CSVHeader()); err != nil {
		return err
	}
	for _, r := range results {
		if err := cw.Write(r.CSVRecord()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteText writes one rendered record per line.
func WriteText(w io.Writer, results []*instruction.StructuredInstruction) error {
	for _, r := range results {
		if _, err := fmt.Fprintln(w, r.String()); err != nil {
			return err
		}
	}
	return nil
}
