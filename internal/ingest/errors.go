package ingest

import "fmt"

// Pass names the extraction pass a file was read in.
type Pass string

const (
	// PassMonthly reads the files of the triggering month. A read failure
	// aborts the run.
	PassMonthly Pass = "monthly"

	// PassYearly reads every file of the triggering year. A read failure
	// skips the file.
	PassYearly Pass = "yearly"
)

// SheetReadError reports a file that could not be read or extracted.
type SheetReadError struct {
	Path string
	Pass Pass
	Err  error
}

func (e *SheetReadError) Error() string {
	return fmt.Sprintf("%s pass: failed to read %s: %v", e.Pass, e.Path, e.Err)
}

func (e *SheetReadError) Unwrap() error {
	return e.Err
}
