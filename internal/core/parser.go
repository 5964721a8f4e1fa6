package core

// parser.go turns exported CSV text into RawRecords.
//
// The dialect is deliberately narrow: one record per line, comma separated,
// double quotes toggle quoted mode and "" inside quotes is a literal quote.
// Rows whose field count differs from the header are dropped and reported
// as warnings rather than failing the file.

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"
)

// MaxFileSize is the maximum CSV size ReadFile accepts (100MB).
var MaxFileSize int64 = 100 * 1024 * 1024

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ParseError is fatal to a run: the input cannot produce any records.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("parse %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("parse csv: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

var (
	// ErrNoData is returned when the input has a header but no data lines.
	ErrNoData = errors.New("empty file: no data rows after header")
	// ErrFileTooLarge is returned by ReadFile for oversized inputs.
	ErrFileTooLarge = errors.New("file too large")
)

// ParseResult is the parser output.
type ParseResult struct {
	Header   []string
	Records  []RawRecord
	Warnings []string
	Dropped  int
}

// ParseOptions tunes the parser. The zero value converts conversionTime.
type ParseOptions struct {
	// TimestampColumn is converted from ISO-8601 to epoch milliseconds.
	TimestampColumn string
}

func (o ParseOptions) timestampColumn() string {
	if o.TimestampColumn == "" {
		return FieldConversionTime
	}
	return o.TimestampColumn
}

// ReadFile reads a CSV export from disk, strips a UTF-8 BOM, replaces
// invalid UTF-8 and parses it.
func ReadFile(path string, opts ParseOptions) (*ParseResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	defer f.Close()

	text, err := readText(f, MaxFileSize)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}

	res, err := Parse(text, opts)
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			pe.Path = path
		}
		return nil, err
	}
	return res, nil
}

// readText loads at most limit bytes and returns them as valid UTF-8 text.
func readText(r io.Reader, limit int64) (string, error) {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	data, err := io.ReadAll(io.LimitReader(br, limit+1))
	if err != nil {
		return "", fmt.Errorf("read: %w", err)
	}
	if int64(len(data)) > limit {
		return "", fmt.Errorf("%w: exceeds %dMB limit", ErrFileTooLarge, limit/(1024*1024))
	}
	if !utf8.Valid(data) {
		return strings.ToValidUTF8(string(data), "?"), nil
	}
	return string(data), nil
}

// Parse splits text into records. The first non-empty line is the header.
func Parse(text string, opts ParseOptions) (*ParseResult, error) {
	lines := splitLines(text)

	nonEmpty := 0
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			nonEmpty++
		}
	}
	if nonEmpty < 2 {
		return nil, &ParseError{Err: ErrNoData}
	}

	headerAt := 0
	for strings.TrimSpace(lines[headerAt]) == "" {
		headerAt++
	}
	header := parseHeader(lines[headerAt])
	tsCol := opts.timestampColumn()

	res := &ParseResult{Header: header}

	for i := headerAt + 1; i < len(lines); i++ {
		line := lines[i]
		lineNum := i + 1

		if strings.TrimSpace(line) == "" {
			continue
		}

		tokens := tokenizeLine(line)
		if len(tokens) != len(header) {
			res.Dropped++
			res.Warnings = append(res.Warnings, fmt.Sprintf(
				"line %d: dropped, has %d columns, expected %d", lineNum, len(tokens), len(header)))
			continue
		}

		values := make([]string, len(tokens))
		for j, tok := range tokens {
			v := CleanCell(tok)
			if header[j] == tsCol && IsISOTimestamp(v) {
				ms, err := ISOToEpochMillis(v)
				if err != nil {
					res.Warnings = append(res.Warnings, fmt.Sprintf(
						"line %d: could not convert %s %q: %v", lineNum, tsCol, v, err))
					v = ""
				} else {
					v = strconv.FormatInt(ms, 10)
				}
			}
			values[j] = v
		}

		rec := NewRawRecord(header, values)
		rec.Index = len(res.Records)
		rec.Line = lineNum
		res.Records = append(res.Records, rec)
	}

	return res, nil
}

// splitLines splits on \n and drops the \r of CRLF endings.
func splitLines(text string) []string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// parseHeader tokenizes the header by comma and cleans each name.
func parseHeader(line string) []string {
	parts := strings.Split(line, ",")
	header := make([]string, len(parts))
	for i, p := range parts {
		header[i] = CleanCell(p)
	}
	return header
}

// tokenizeLine splits one data line, honouring quoted fields.
func tokenizeLine(line string) []string {
	var (
		tokens   []string
		cur      strings.Builder
		inQuotes bool
	)

	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == '"' && inQuotes && i+1 < len(line) && line[i+1] == '"':
			cur.WriteByte('"')
			i++
		case c == '"':
			inQuotes = !inQuotes
		case c == ',' && !inQuotes:
			tokens = append(tokens, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	return append(tokens, cur.String())
}
