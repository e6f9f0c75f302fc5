// Package telemetry parses decoded flight logs into typed records.
//
// The external decoder emits a comma-delimited text file: one header
// line followed by value lines, fields optionally double-quoted.
// Parsing is strictly line-at-a-time so multi-gigabyte logs never get
// buffered whole.
package telemetry

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/vineyard-analyzer/backend/internal/models"
)

// ProgressCallback is called periodically during parsing to report progress.
type ProgressCallback func(linesProcessed int, bytesProcessed int64, totalBytes int64)

// maxLineSize bounds a single decoder output line.
const maxLineSize = 1024 * 1024

// RecordStream is a forward-only lazy sequence of flight records read
// from a decoded log. It is not restartable; re-open the source to
// scan again.
type RecordStream struct {
	scanner   *bufio.Scanner
	closer    io.Closer
	header    []string
	cols      ColumnIndexMap
	lineNum   int
	bytesRead int64
}

// OpenStream opens a decoded log file and positions the stream past
// the header line.
func OpenStream(filePath string, aliases models.ColumnAliases) (*RecordStream, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}

	s, err := NewRecordStream(file, aliases)
	if err != nil {
		file.Close()
		return nil, err
	}
	s.closer = file
	return s, nil
}

// NewRecordStream reads the header line from r and returns a stream
// over the remaining lines.
func NewRecordStream(r io.Reader, aliases models.ColumnAliases) (*RecordStream, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	var header []string
	var consumed int64
	for scanner.Scan() {
		line := scanner.Text()
		consumed += int64(len(line)) + 1
		if strings.TrimSpace(line) == "" {
			continue
		}
		header = splitCSVLine(line)
		break
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	if header == nil {
		return nil, fmt.Errorf("decoded log is empty")
	}

	return &RecordStream{
		scanner:   scanner,
		header:    header,
		cols:      ResolveColumns(header, aliases),
		bytesRead: consumed,
	}, nil
}

// Header returns the ordered header field list of the underlying log.
func (s *RecordStream) Header() []string {
	return s.header
}

// Columns returns the resolved column index map.
func (s *RecordStream) Columns() ColumnIndexMap {
	return s.cols
}

// BytesRead returns the number of bytes consumed so far.
func (s *RecordStream) BytesRead() int64 {
	return s.bytesRead
}

// LinesRead returns the number of value lines consumed so far.
func (s *RecordStream) LinesRead() int {
	return s.lineNum
}

// Next returns the next record whose coordinates pass the validity
// filter. Lines without a valid GPS fix are skipped, never fatal.
// Returns io.EOF at end of stream.
func (s *RecordStream) Next() (*models.FlightRecord, error) {
	for s.scanner.Scan() {
		line := s.scanner.Text()
		s.lineNum++
		s.bytesRead += int64(len(line)) + 1
		if strings.TrimSpace(line) == "" {
			continue
		}

		rec, ok := s.recordFromLine(line)
		if !ok {
			continue
		}
		return rec, nil
	}
	if err := s.scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading log line %d: %w", s.lineNum, err)
	}
	return nil, io.EOF
}

// Close releases the underlying file, if the stream owns one.
func (s *RecordStream) Close() error {
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

func (s *RecordStream) recordFromLine(line string) (*models.FlightRecord, bool) {
	fields := splitCSVLine(line)

	latCell := cellAt(fields, s.cols.Latitude)
	lonCell := cellAt(fields, s.cols.Longitude)
	if latCell.Kind != models.CellNumber || lonCell.Kind != models.CellNumber {
		return nil, false
	}
	lat, lon := latCell.Num, lonCell.Num
	if !models.HasValidPosition(lat, lon) {
		return nil, false
	}

	rec := &models.FlightRecord{
		Latitude:     lat,
		Longitude:    lon,
		Altitude:     cellAt(fields, s.cols.Altitude).Float(0),
		Height:       cellAt(fields, s.cols.Height).Float(0),
		Pitch:        cellAt(fields, s.cols.Pitch).Float(0),
		Roll:         cellAt(fields, s.cols.Roll).Float(0),
		Yaw:          cellAt(fields, s.cols.Yaw).Float(0),
		XSpeed:       cellAt(fields, s.cols.XSpeed).Float(0),
		YSpeed:       cellAt(fields, s.cols.YSpeed).Float(0),
		ZSpeed:       cellAt(fields, s.cols.ZSpeed).Float(0),
		HSpeed:       cellAt(fields, s.cols.HSpeed).Float(0),
		GimbalPitch:  cellAt(fields, s.cols.GimbalPitch).Float(0),
		GimbalRoll:   cellAt(fields, s.cols.GimbalRoll).Float(0),
		GimbalYaw:    cellAt(fields, s.cols.GimbalYaw).Float(0),
		BatteryLevel: cellAt(fields, s.cols.BatteryLevel).Float(0),
		GPSNum:       cellAt(fields, s.cols.GPSNum).Float(0),
		FlightMode:   cellAt(fields, s.cols.FlightMode).String("Unknown"),
	}

	if s.cols.Timestamp >= 0 && s.cols.Timestamp < len(fields) {
		if ts, ok := parseLogTimestamp(fields[s.cols.Timestamp]); ok {
			rec.Timestamp = &ts
		}
	}

	return rec, true
}

// cellAt coerces the field at idx into a tagged cell value. Out-of-range
// or absent columns yield an empty text cell.
func cellAt(fields []string, idx int) models.CellValue {
	if idx < 0 || idx >= len(fields) {
		return models.TextCell("")
	}
	return parseCell(fields[idx])
}

// parseCell coerces a raw field to a number when it is non-empty and
// numeric, otherwise leaves it as text.
func parseCell(raw string) models.CellValue {
	s := strings.TrimSpace(raw)
	if s == "" {
		return models.TextCell("")
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(v) && !math.IsInf(v, 0) {
		return models.NumberCell(v)
	}
	return models.TextCell(s)
}

// splitCSVLine splits a comma-delimited line, honoring double quotes:
// commas inside a quoted field do not delimit. Surrounding quotes and
// whitespace are trimmed from each field.
func splitCSVLine(line string) []string {
	fields := make([]string, 0, 16)
	var sb strings.Builder
	inQuotes := false
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == '"':
			inQuotes = !inQuotes
		case c == ',' && !inQuotes:
			fields = append(fields, strings.TrimSpace(sb.String()))
			sb.Reset()
		default:
			sb.WriteByte(c)
		}
	}
	fields = append(fields, strings.TrimSpace(sb.String()))
	return fields
}

// logTimestampLayouts are tried in order against the timestamp column.
var logTimestampLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006/01/02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999",
}

// parseLogTimestamp parses the decoder's timestamp column. Numeric
// values are treated as Unix epoch milliseconds.
func parseLogTimestamp(raw string) (time.Time, bool) {
	s := strings.TrimSpace(strings.Trim(strings.TrimSpace(raw), `"`))
	if s == "" {
		return time.Time{}, false
	}

	if ms, err := strconv.ParseInt(s, 10, 64); err == nil && ms > 1e11 {
		return time.UnixMilli(ms).UTC(), true
	}

	for _, layout := range logTimestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// ParseAll drains a stream into a ParsedFlightLog, reporting progress
// every progressEvery lines when a callback is given.
func ParseAll(s *RecordStream, totalBytes int64, onProgress ProgressCallback) (*models.ParsedFlightLog, error) {
	const progressEvery = 10000

	parsed := models.NewParsedFlightLog()
	parsed.Header = s.Header()

	for {
		rec, err := s.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		parsed.Records = append(parsed.Records, *rec)

		if onProgress != nil && s.LinesRead()%progressEvery == 0 {
			onProgress(s.LinesRead(), s.BytesRead(), totalBytes)
		}
	}

	if tr := recordTimeRange(parsed.Records); tr != nil {
		parsed.TimeRange = tr
	}
	return parsed, nil
}

// ParseFile opens, fully parses, and closes a decoded log file.
func ParseFile(filePath string, aliases models.ColumnAliases, onProgress ProgressCallback) (*models.ParsedFlightLog, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		return nil, err
	}

	s, err := OpenStream(filePath, aliases)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	return ParseAll(s, info.Size(), onProgress)
}

func recordTimeRange(records []models.FlightRecord) *models.TimeRange {
	var tr *models.TimeRange
	for i := range records {
		ts := records[i].Timestamp
		if ts == nil {
			continue
		}
		if tr == nil {
			tr = &models.TimeRange{Start: *ts, End: *ts}
			continue
		}
		if ts.Before(tr.Start) {
			tr.Start = *ts
		}
		if ts.After(tr.End) {
			tr.End = *ts
		}
	}
	return tr
}
