package invoice

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
	"github.com/shopspring/decimal"

	"github.com/starford/subtrack/internal/models"
)

// PDFExtractor reads the text layer of a PDF invoice.
// Scanned invoices without a text layer are rejected with ErrUnreadable.
type PDFExtractor struct{}

// Extract implements Extractor.
func (PDFExtractor) Extract(ctx context.Context, filename string, data []byte) (*Parsed, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	text, err := pdfText(data)
	if err != nil {
		return nil, fmt.Errorf("invoice: read %s: %w", filename, err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrUnreadable
	}
	p := ParseText(text)
	p.Raw = map[string]any{"filename": filename, "chars": len(text)}
	return p, nil
}

func pdfText(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf library crashed: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", err
	}
	out, err := io.ReadAll(plain)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

var (
	vendorRe = regexp.MustCompile(`(?im)^\s*(?:vendor|from|billed by|seller|company)\s*[:\-]\s*(.+?)\s*$`)
	totalRe  = regexp.MustCompile(`(?i)(?:amount due|total due|grand total|total)\s*[:\-]?\s*(?:[A-Z]{3}\s*)?[$€£]?\s*([0-9][0-9,]*\.[0-9]{2})`)
	dateRe   = regexp.MustCompile(`(?i)(?:invoice date|date of issue|date)\s*[:\-]?\s*([0-9]{4}-[0-9]{2}-[0-9]{2}|[0-9]{1,2}/[0-9]{1,2}/[0-9]{4}|[A-Z][a-z]+ [0-9]{1,2}, [0-9]{4})`)
	periodRe = regexp.MustCompile(`(?i)\b(monthly|per month|/mo|annual(?:ly)?|yearly|per year|/yr|weekly|per week)\b`)
)

// dateLayouts are tried in order for the captured invoice date.
var dateLayouts = []string{models.DateLayout, "01/02/2006", "January 2, 2006", "Jan 2, 2006"}

// ParseText extracts invoice fields from plain text. Fields it cannot find
// are left empty; the vendor falls back to the first non-blank line.
func ParseText(text string) *Parsed {
	p := &Parsed{BillingPeriod: PeriodUnknown}

	if m := vendorRe.FindStringSubmatch(text); m != nil {
		p.Vendor = m[1]
	} else {
		for _, line := range strings.Split(text, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				p.Vendor = line
				break
			}
		}
	}

	if m := totalRe.FindStringSubmatch(text); m != nil {
		if d, err := decimal.NewFromString(strings.ReplaceAll(m[1], ",", "")); err == nil {
			p.Total = &d
		}
	}

	if m := dateRe.FindStringSubmatch(text); m != nil {
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, m[1]); err == nil {
				p.InvoiceDate = t.Format(models.DateLayout)
				break
			}
		}
	}

	if m := periodRe.FindStringSubmatch(text); m != nil {
		switch w := strings.ToLower(m[1]); {
		case strings.Contains(w, "week"):
			p.BillingPeriod = PeriodWeekly
		case strings.Contains(w, "ann"), strings.Contains(w, "year"), w == "/yr":
			p.BillingPeriod = PeriodYearly
		default:
			p.BillingPeriod = PeriodMonthly
		}
	}
	return p
}
