package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/unicode/norm"
)

// DateLayout is the output format of every parsed date.
const DateLayout = "2006/01/02"

var (
	monthDayKanjiRe = regexp.MustCompile(`^(\d{1,2})月(\d{1,2})日$`)
	monthDaySlashRe = regexp.MustCompile(`^(\d{1,2})[/\-](\d{1,2})$`)
	monthDayBareRe  = regexp.MustCompile(`^(\d{1,2})月(\d{1,2})$`)
	compactRe       = regexp.MustCompile(`^(\d{4})(\d{2})(\d{2})$`)
	fullKanjiRe     = regexp.MustCompile(`^(\d{4})年(\d{1,2})月(\d{1,2})日$`)
	serialRe        = regexp.MustCompile(`^\d{1,6}(\.\d+)?$`)
)

// genericLayouts are tried after the fixed patterns. "01-02-06" is how
// spreadsheet libraries render the built-in short date format.
var genericLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"2006-1-2",
	"2006/1/2",
	"2006.1.2",
	"2006-01-02 15:04:05",
	"2006/01/02 15:04:05",
	"2006/1/2 15:04",
	time.RFC3339,
	"01-02-06",
	"1/2/2006",
	"1/2/06",
	"Jan 2, 2006",
	"2 Jan 2006",
}

// maxExcelSerial is 9999-12-31.
const maxExcelSerial = 2958465

// ParseFlexibleDate normalizes a date cell to YYYY/MM/DD. Year-less forms
// take year from the argument; when year is 0 they do not parse. An empty
// result means the cell could not be read as a date.
//
// Forms, in order: "5月1日", "5/1" or "5-1", "5月1", "20240501",
// "2024年5月1日", common layouts, and spreadsheet serial numbers.
func ParseFlexibleDate(raw string, year int) string {
	s := strings.TrimSpace(norm.NFKC.String(raw))
	if s == "" {
		return ""
	}

	for _, re := range []*regexp.Regexp{monthDayKanjiRe, monthDaySlashRe, monthDayBareRe} {
		if m := re.FindStringSubmatch(s); m != nil {
			if year == 0 {
				return ""
			}
			return formatDate(year, atoi(m[1]), atoi(m[2]))
		}
	}

	if m := compactRe.FindStringSubmatch(s); m != nil {
		return formatDate(atoi(m[1]), atoi(m[2]), atoi(m[3]))
	}
	if m := fullKanjiRe.FindStringSubmatch(s); m != nil {
		return formatDate(atoi(m[1]), atoi(m[2]), atoi(m[3]))
	}

	for _, layout := range genericLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(DateLayout)
		}
	}

	if serialRe.MatchString(s) {
		if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 1 && f <= maxExcelSerial {
			if t, err := excelize.ExcelDateToTime(f, false); err == nil {
				return t.Format(DateLayout)
			}
		}
	}

	return ""
}

// formatDate renders a date, or "" when it does not exist on the calendar.
func formatDate(y, m, d int) string {
	if y <= 0 || m < 1 || m > 12 || d < 1 {
		return ""
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if t.Day() != d || int(t.Month()) != m {
		return ""
	}
	return t.Format(DateLayout)
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// DefaultDate is the first day of the file's month, or "" without one.
func DefaultDate(year, month int) string {
	return formatDate(year, month, 1)
}
