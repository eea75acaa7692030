package checkstub

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"
)

// RenderPDF renders the stub pages as a letter-format PDF. Only the check on
// the first page is valid when the stub spills onto several pages; the
// remainder exists for the payee's records.
func RenderPDF(stub *Stub, multiStub bool) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "Letter", "")
	pdf.SetFont("Arial", "", 10)

	pages := stub.Pages(multiStub)
	for pageNo, page := range pages {
		pdf.AddPage()

		pdf.SetFont("Arial", "B", 12)
		pdf.Cell(0, 8, fmt.Sprintf("Payment %s", stub.Payment.ID))
		pdf.Ln(10)

		pdf.SetFont("Arial", "", 10)
		pdf.Cell(0, 6, fmt.Sprintf("Date: %s", stub.Payment.Date))
		pdf.Ln(5)
		pdf.Cell(0, 6, fmt.Sprintf("Amount: %s", formatAmount(stub.Payment.Amount, stub.Payment.Currency)))
		pdf.Ln(5)
		if stub.Payment.Memo != "" {
			pdf.Cell(0, 6, fmt.Sprintf("Memo: %s", stub.Payment.Memo))
			pdf.Ln(5)
		}
		pdf.Ln(4)

		pdf.SetFont("Arial", "B", 9)
		pdf.CellFormat(45, 6, "Invoice", "1", 0, "L", false, 0, "")
		pdf.CellFormat(25, 6, "Due Date", "1", 0, "C", false, 0, "")
		pdf.CellFormat(30, 6, "Total", "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, "Balance", "1", 0, "R", false, 0, "")
		pdf.CellFormat(25, 6, "Discount", "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, "Paid", "1", 0, "R", false, 0, "")
		pdf.Ln(-1)

		pdf.SetFont("Arial", "", 9)
		for _, line := range page {
			if line.Header {
				pdf.SetFont("Arial", "B", 9)
				pdf.CellFormat(185, 6, line.Name, "1", 0, "L", false, 0, "")
				pdf.Ln(-1)
				pdf.SetFont("Arial", "", 9)
				continue
			}
			number := line.Number
			if line.Memo != "" {
				number = line.Number + " - " + line.Memo
			}
			pdf.CellFormat(45, 6, number, "1", 0, "L", false, 0, "")
			pdf.CellFormat(25, 6, line.DueDate.String(), "1", 0, "C", false, 0, "")
			pdf.CellFormat(30, 6, formatAmount(line.Total, line.Currency), "1", 0, "R", false, 0, "")
			pdf.CellFormat(30, 6, formatResidual(line.Residual, line.Currency), "1", 0, "R", false, 0, "")
			pdf.CellFormat(25, 6, formatAmount(line.Discount, line.Currency), "1", 0, "R", false, 0, "")
			pdf.CellFormat(30, 6, formatAmount(line.Paid, line.Currency), "1", 0, "R", false, 0, "")
			pdf.Ln(-1)
		}

		if pageNo == 0 && !multiStub && stub.Truncated() {
			pdf.CellFormat(185, 6, "...", "1", 0, "C", false, 0, "")
			pdf.Ln(-1)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func formatAmount(d decimal.Decimal, currency string) string {
	return fmt.Sprintf("%s %s", d.StringFixed(2), currency)
}

// formatResidual prints "-" for a settled balance, matching check layouts.
func formatResidual(d decimal.Decimal, currency string) string {
	if d.IsZero() {
		return "-"
	}
	return formatAmount(d, currency)
}
