// Package export renders reports, transactions and stand labels as files.
package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"
	"rsc.io/qr"

	"github.com/erazemk/stojala/internal/model"
)

const dateLayout = "2006-01-02 15:04"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format(dateLayout)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// ReportsPDF renders reports as a table, with failed checklist answers
// listed under each report.
func ReportsPDF(reports []model.Report) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Stand reports")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 9)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", time.Now().Format(dateLayout)))
	pdf.Ln(8)

	widths := []float64{35, 25, 55, 25, 20, 55, 60}
	headers := []string{"Date", "Stand", "Responsible", "Issues", "Serviced", "Serviced by", "Notes"}
	pdf.SetFont("Arial", "B", 9)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 6, h, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for _, r := range reports {
		row := []string{
			formatTime(r.Date),
			r.StandNumber,
			r.ResponsibleName,
			yesNo(r.HasIssues()),
			yesNo(r.IsServiced),
			r.ServicedBy,
			r.ServiceNotes,
		}
		for i, v := range row {
			pdf.CellFormat(widths[i], 6, tr(v), "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)

		for _, a := range r.Answers {
			if a.Answer {
				continue
			}
			line := "  - " + a.Question
			if a.Notes != "" {
				line += ": " + a.Notes
			}
			pdf.CellFormat(0, 5, tr(line), "", 0, "L", false, 0, "")
			pdf.Ln(-1)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ReportsXLSX renders a summary sheet and one row per checklist answer.
func ReportsXLSX(reports []model.Report) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	reportsSheet := "reports"
	answersSheet := "answers"
	if err := f.SetSheetName("Sheet1", reportsSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(answersSheet); err != nil {
		return nil, err
	}

	header := []any{"Report", "Date", "Stand", "Responsible", "Issues", "Serviced", "Serviced by", "Serviced at", "Notes"}
	if err := f.SetSheetRow(reportsSheet, "A1", &header); err != nil {
		return nil, err
	}
	answerHeader := []any{"Report", "Stand", "Question", "Answer", "Notes"}
	if err := f.SetSheetRow(answersSheet, "A1", &answerHeader); err != nil {
		return nil, err
	}

	answerRow := 2
	for i, r := range reports {
		servicedAt := ""
		if r.ServicedAt != nil {
			servicedAt = formatTime(*r.ServicedAt)
		}
		row := []any{
			r.ID,
			formatTime(r.Date),
			r.StandNumber,
			r.ResponsibleName,
			yesNo(r.HasIssues()),
			yesNo(r.IsServiced),
			r.ServicedBy,
			servicedAt,
			r.ServiceNotes,
		}
		if err := f.SetSheetRow(reportsSheet, fmt.Sprintf("A%d", i+2), &row); err != nil {
			return nil, err
		}

		for _, a := range r.Answers {
			arow := []any{r.ID, r.StandNumber, a.Question, yesNo(a.Answer), a.Notes}
			if err := f.SetSheetRow(answersSheet, fmt.Sprintf("A%d", answerRow), &arow); err != nil {
				return nil, err
			}
			answerRow++
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// transactionRow is one CSV line of the movement log.
type transactionRow struct {
	Date        string `csv:"date"`
	Type        string `csv:"type"`
	Stand       string `csv:"stand"`
	Responsible string `csv:"responsible"`
	Report      string `csv:"report"`
	ID          string `csv:"id"`
}

// TransactionsCSV renders the movement log.
func TransactionsCSV(txs []model.Transaction) ([]byte, error) {
	rows := make([]*transactionRow, 0, len(txs))
	for _, t := range txs {
		rows = append(rows, &transactionRow{
			Date:        t.Date.UTC().Format(time.RFC3339),
			Type:        t.Type,
			Stand:       t.StandNumber,
			Responsible: t.ResponsibleName,
			Report:      t.ReportID,
			ID:          t.ID,
		})
	}
	out, err := gocsv.MarshalBytes(&rows)
	if err != nil {
		return nil, fmt.Errorf("encoding transactions: %w", err)
	}
	return out, nil
}

// StandQR renders code as a PNG QR code.
func StandQR(code string) ([]byte, error) {
	c, err := qr.Encode(code, qr.M)
	if err != nil {
		return nil, fmt.Errorf("encoding QR code: %w", err)
	}
	c.Scale = 8
	return c.PNG(), nil
}
