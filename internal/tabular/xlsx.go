package tabular

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// xlsxRecords streams rows of one worksheet.
type xlsxRecords struct {
	file *excelize.File
	rows *excelize.Rows
}

func openXLSX(r io.Reader, sheet string) (*xlsxRecords, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			f.Close()
			return nil, fmt.Errorf("workbook has no sheets")
		}
		sheet = sheets[0]
	}

	rows, err := f.Rows(sheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	return &xlsxRecords{file: f, rows: rows}, nil
}

func (x *xlsxRecords) read() (record, error) {
	for x.rows.Next() {
		cols, err := x.rows.Columns()
		if err != nil {
			return record{}, &InputFormatError{Err: err}
		}
		// Blank spreadsheet rows are skipped like blank CSV lines.
		if len(cols) == 0 {
			continue
		}
		return record{fields: cols}, nil
	}
	if err := x.rows.Error(); err != nil {
		return record{}, &InputFormatError{Err: err}
	}
	return record{}, io.EOF
}

func (x *xlsxRecords) close() error {
	if err := x.rows.Close(); err != nil {
		x.file.Close()
		return err
	}
	return x.file.Close()
}
