package cli

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const resultsSheet = "Results"

var xlsxHeader = []interface{}{
	"Index", "Title", "Snippet", "Confidence", "Confidence Tier",
	"Relevance Score", "Hallucination Risk", "Risk Tier", "Expanded Content",
}

// writeXLSX writes the results as a one-sheet workbook. The expanded content column is
// filled for results expanded in the session.
func writeXLSX(w io.Writer, v SessionView) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", resultsSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetSheetRow(resultsSheet, "A1", &xlsxHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	if err := f.SetCellStyle(resultsSheet, "A1", "I1", bold); err != nil {
		return fmt.Errorf("apply header style: %w", err)
	}

	for i, r := range v.Results {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []interface{}{
			r.Index, r.Title, r.Snippet, r.Confidence, string(r.ConfidenceTier),
			r.RelevanceScore, r.HallucinationRisk, string(r.RiskTier), "",
		}
		if r.ExpandedContent != nil {
			row[8] = *r.ExpandedContent
		}
		if err := f.SetSheetRow(resultsSheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
