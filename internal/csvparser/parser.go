// =============================================================================
// Invoice Rollup - CSV Parser Module
// =============================================================================
//
// This module reads CSV invoices into a schema.Table. Subcontractors export
// from whatever tool they use, so the parser has to cope with:
//   - UTF-8 with or without a byte-order mark
//   - Shift_JIS (the default of older Japanese Excel installations)
//   - Title rows above the real header
//   - Ragged rows and sloppy quoting
//
// FEATURES:
//   - Encoding auto-detection (BOM, UTF-8 validity, Shift_JIS fallback)
//   - Header row located by schema.DetectHeaderRow
//   - Blank rows skipped
//
// =============================================================================

package csvparser

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/ginjaninja78/invoice-rollup/internal/schema"
)

// Supported encodings.
const (
	EncodingAuto     = "auto"
	EncodingUTF8     = "utf-8"
	EncodingShiftJIS = "shift_jis"
)

// Settings control how a file is read.
type Settings struct {
	// Encoding is one of EncodingAuto, EncodingUTF8, EncodingShiftJIS.
	Encoding string

	// Delimiter is "," by default; "tab", "pipe" and "semicolon" are
	// accepted by name.
	Delimiter string
}

// =============================================================================
// PARSER FUNCTIONS
// =============================================================================

// Parse reads a CSV file and returns it as a table named after the file.
//
// PARAMETERS:
//   - filePath: The path to the CSV file.
//   - settings: Encoding and delimiter.
//
// RETURNS:
//   - The table, possibly with no rows.
//   - An error if the file cannot be read, decoded or parsed.
func Parse(filePath string, settings Settings) (*schema.Table, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	records, err := ReadRecords(bytes.NewReader(data), settings)
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV %s: %w", filepath.Base(filePath), err)
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("CSV file is empty")
	}

	name := strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath))
	return schema.FromRecords(name, records), nil
}

// ReadRecords decodes and parses every record of r.
func ReadRecords(r io.Reader, settings Settings) ([][]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	dec, err := decoderFor(data, settings.Encoding)
	if err != nil {
		return nil, err
	}

	csvReader := csv.NewReader(transform.NewReader(bytes.NewReader(data), dec.NewDecoder()))
	configureReader(csvReader, settings)

	return csvReader.ReadAll()
}

// decoderFor picks the text encoding of data.
func decoderFor(data []byte, name string) (encoding.Encoding, error) {
	bomAware := unicode.UTF8BOM

	switch strings.ToLower(strings.ReplaceAll(name, "-", "_")) {
	case "", EncodingAuto:
		if bytes.HasPrefix(data, []byte("\xEF\xBB\xBF")) || utf8.Valid(data) {
			return bomAware, nil
		}
		return japanese.ShiftJIS, nil
	case "utf_8", "utf8":
		return bomAware, nil
	case EncodingShiftJIS, "sjis", "cp932":
		return japanese.ShiftJIS, nil
	default:
		return nil, fmt.Errorf("unsupported encoding %q", name)
	}
}

// configureReader configures the CSV reader based on the settings.
func configureReader(reader *csv.Reader, settings Settings) {
	switch settings.Delimiter {
	case "\\t", "tab", "TAB":
		reader.Comma = '\t'
	case "|", "pipe", "PIPE":
		reader.Comma = '|'
	case ";", "semicolon":
		reader.Comma = ';'
	default:
		if len(settings.Delimiter) > 0 {
			reader.Comma = rune(settings.Delimiter[0])
		} else {
			reader.Comma = ','
		}
	}

	// Invoices are hand-edited; rows vary in width and quoting is loose.
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
}
