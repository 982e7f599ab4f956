// File: internal/reporting/reporter.go
package reporting

import (
	"fmt"
	"io"
	"os"
	"strings"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/relist-cli/api/schemas"
)

// Reporter renders a finished run summary for humans or other tools.
type Reporter interface {
	// Write renders a single run summary.
	Write(summary *schemas.RunSummary) error
	// Close finalizes the report and closes any underlying file handle.
	Close() error
}

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

// New creates a reporter for format writing to outputPath. An empty path or
// "stdout" writes to standard output.
func New(format, outputPath string) (Reporter, error) {
	if err := CheckFormat(format); err != nil {
		return nil, err
	}

	var writer io.WriteCloser
	if outputPath == "" || outputPath == "stdout" {
		writer = &nopWriteCloser{os.Stdout}
	} else {
		f, err := os.Create(outputPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file %s: %w", outputPath, err)
		}
		writer = f
	}
	return NewWithWriter(format, writer), nil
}

// CheckFormat reports whether format is a supported output format.
func CheckFormat(format string) error {
	switch format {
	case "json", "text":
		return nil
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

// NewWithWriter creates a reporter writing to w. It takes ownership of w
// when w is also an io.Closer.
func NewWithWriter(format string, w io.Writer) Reporter {
	wc, ok := w.(io.WriteCloser)
	if !ok {
		wc = &nopWriteCloser{w}
	}
	if format == "text" {
		return &textReporter{w: wc}
	}
	return &jsonReporter{w: wc}
}

type jsonReporter struct {
	w io.WriteCloser
}

func (r *jsonReporter) Write(summary *schemas.RunSummary) error {
	enc := json.NewEncoder(r.w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	return nil
}

func (r *jsonReporter) Close() error { return r.w.Close() }

type textReporter struct {
	w io.WriteCloser
}

func (r *textReporter) Write(s *schemas.RunSummary) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Run %s [%s] %s\n", s.RunID, s.Mode, strings.ToUpper(string(s.Status)))
	if s.ErrorCode != "" {
		fmt.Fprintf(&b, "  error:    %s\n", s.ErrorCode)
	}
	fmt.Fprintf(&b, "  message:  %s\n", s.Message)
	fmt.Fprintf(&b, "  found:    %d\n", s.RepostFound)
	fmt.Fprintf(&b, "  reposted: %d\n", s.RepostClicked)
	for _, ref := range s.ActedOn {
		fmt.Fprintf(&b, "    + %s\n", describe(ref))
	}
	for _, ref := range s.WouldActOn {
		fmt.Fprintf(&b, "    ~ %s (dry run)\n", describe(ref))
	}
	for _, f := range s.Failures {
		fmt.Fprintf(&b, "    ! %s: %s\n", describe(f.ListingRef), f.Error)
	}
	if s.Unconfirmed != nil {
		fmt.Fprintf(&b, "    ? %s (clicked, not confirmed)\n", describe(*s.Unconfirmed))
	}
	if s.VerificationBanner != nil && *s.VerificationBanner {
		b.WriteString("  verification challenge detected\n")
	}
	_, err := io.WriteString(r.w, b.String())
	return err
}

func (r *textReporter) Close() error { return r.w.Close() }

func describe(ref schemas.ListingRef) string {
	if ref.PostingID == "" {
		return ref.Title
	}
	return fmt.Sprintf("%s (%s)", ref.Title, ref.PostingID)
}
