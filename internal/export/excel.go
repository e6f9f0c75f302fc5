package export

import (
	"fmt"
	"io"

	"github.com/vineyard-analyzer/backend/internal/models"
	"github.com/xuri/excelize/v2"
)

const annotationSheet = "Annotations"

// WriteXLSX writes annotation records as a spreadsheet report with the
// same field order as the CSV output.
func WriteXLSX(w io.Writer, records []models.AnnotationRecord) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", annotationSheet); err != nil {
		return fmt.Errorf("renaming sheet: %w", err)
	}

	for col, name := range Header {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(annotationSheet, cell, name); err != nil {
			return fmt.Errorf("writing header cell: %w", err)
		}
	}

	for i := range records {
		for col, value := range row(&records[i]) {
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(annotationSheet, cell, value); err != nil {
				return fmt.Errorf("writing row %d: %w", i, err)
			}
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}
