package export

import (
	"fmt"
	"strings"
)

// Format identifies a supported export encoding.
type Format string

const (
	FormatCSV Format = "csv"
	FormatPDF Format = "pdf"
)

// ParseFormat normalises a user supplied format. An empty value selects CSV.
func ParseFormat(raw string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatPDF:
		return FormatPDF, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", raw)
	}
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	if f == FormatPDF {
		return "application/pdf"
	}
	return "text/csv"
}

// Dataset defines tabular export content. Each row is aligned with Headers.
type Dataset struct {
	Title   string
	Headers []string
	Rows    [][]string
}

// Append adds a row, padding or truncating it to the header width.
func (d *Dataset) Append(values ...string) {
	row := make([]string, len(d.Headers))
	copy(row, values)
	d.Rows = append(d.Rows, row)
}

// Render encodes the dataset in the requested format.
func Render(format Format, data Dataset) ([]byte, error) {
	switch format {
	case FormatCSV:
		return NewCSVExporter().Render(data)
	case FormatPDF:
		return NewPDFExporter().Render(data)
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}
