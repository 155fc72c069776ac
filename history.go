package iptrace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// TimeFormat is the layout of the timestamp that follows the address on each log line.
const TimeFormat = "2006-01-02 15:04:05"

// TraceDir is the subdirectory of the storage directory that holds one log per host.
const TraceDir = "trace"

// tailChunk is how many bytes are read per step when scanning a log backwards.
const tailChunk = 4096

var ErrInvalidHost = errors.New("invalid host name")

// Record is one line of a host's log.
type Record struct {
	Address    string    `json:"address"`
	ObservedAt time.Time `json:"observed_at"`
}

// String returns the record as it is written to the log, without the trailing newline.
func (r Record) String() string {
	return r.Address + " " + r.ObservedAt.Format(TimeFormat)
}

// ParseRecord splits a log line at its first space.
// A line without a space is all address.
// A timestamp that does not parse leaves ObservedAt zero.
func ParseRecord(line string) Record {
	line = strings.TrimRight(line, "\r\n")
	addr, ts, found := strings.Cut(line, " ")
	rec := Record{Address: addr}
	if !found {
		return rec
	}
	if t, err := time.ParseInLocation(TimeFormat, strings.TrimSpace(ts), time.Local); err == nil {
		rec.ObservedAt = t
	}
	return rec
}

// ValidHost reports whether host can name a log file.
func ValidHost(host string) error {
	if host == "" || host == "." || host == ".." || strings.ContainsAny(host, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidHost, host)
	}
	return nil
}

// FileHistory keeps each host's log at Dir/trace/<host>.
type FileHistory struct {
	Dir string
}

// NewFileHistory returns a History rooted at the storage directory dir.
func NewFileHistory(dir string) *FileHistory {
	return &FileHistory{Dir: dir}
}

// Path returns the log file for host.
func (h *FileHistory) Path(host string) string {
	return filepath.Join(h.Dir, TraceDir, host)
}

// ReadLast implements History.
// Only the end of the file is read, so the cost does not depend on how long the log has grown.
func (h *FileHistory) ReadLast(ctx context.Context, host string) (Record, bool, error) {
	if err := ValidHost(host); err != nil {
		return Record{}, false, err
	}
	f, err := os.Open(h.Path(host))
	if errors.Is(err, fs.ErrNotExist) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("error opening log: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return Record{}, false, fmt.Errorf("error reading log size: %w", err)
	}
	line, ok, err := lastLine(f, info.Size())
	if err != nil || !ok {
		return Record{}, false, err
	}
	return ParseRecord(line), true, nil
}

// lastLine returns the final non-blank line of the first size bytes of r.
func lastLine(r io.ReaderAt, size int64) (string, bool, error) {
	var tail []byte
	pos := size
	for {
		if pos > 0 {
			n := int64(tailChunk)
			if n > pos {
				n = pos
			}
			pos -= n
			buf := make([]byte, n)
			if _, err := r.ReadAt(buf, pos); err != nil && !errors.Is(err, io.EOF) {
				return "", false, fmt.Errorf("error reading log: %w", err)
			}
			tail = append(buf, tail...)
		}

		trimmed := strings.TrimRight(string(tail), " \t\r\n")
		if i := strings.LastIndexByte(trimmed, '\n'); i >= 0 {
			return trimmed[i+1:], true, nil
		}
		if pos == 0 {
			return trimmed, trimmed != "", nil
		}
	}
}

// Append implements History, creating the log and its directory when needed.
func (h *FileHistory) Append(ctx context.Context, host string, rec Record) error {
	_, err := h.append(host, rec)
	return err
}

// append writes rec and returns the size of the log afterwards.
func (h *FileHistory) append(host string, rec Record) (int64, error) {
	if err := ValidHost(host); err != nil {
		return 0, err
	}
	if err := validAddress(rec.Address); err != nil {
		return 0, fmt.Errorf("%w: %q", err, rec.Address)
	}
	if err := os.MkdirAll(filepath.Join(h.Dir, TraceDir), 0755); err != nil {
		return 0, fmt.Errorf("error creating trace directory: %w", err)
	}
	f, err := os.OpenFile(h.Path(host), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return 0, fmt.Errorf("error opening log: %w", err)
	}
	if _, err := fmt.Fprintln(f, rec.String()); err != nil {
		f.Close()
		return 0, fmt.Errorf("error writing record: %w", err)
	}
	info, err := f.Stat()
	if cerr := f.Close(); cerr != nil {
		return 0, fmt.Errorf("error closing log: %w", cerr)
	}
	if err != nil {
		return 0, fmt.Errorf("error reading log size: %w", err)
	}
	return info.Size(), nil
}

// size returns the length of host's log, or 0 when it does not exist.
func (h *FileHistory) size(host string) (int64, error) {
	info, err := os.Stat(h.Path(host))
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Result describes one compare-and-append step.
type Result struct {
	Host        string
	Previous    Record
	HadPrevious bool
	// Current is the record just written when Changed, otherwise the previous record.
	Current Record
	Changed bool
}

// AppendIfChanged appends a record for addr to host's log unless the last record already has that exact address.
// A host without records always gets one, even for the empty address.
func AppendIfChanged(ctx context.Context, h History, host, addr string, now time.Time) (Result, error) {
	res := Result{Host: host}
	last, ok, err := h.ReadLast(ctx, host)
	if err != nil {
		return res, fmt.Errorf("error reading last record for %s: %w", host, err)
	}
	res.Previous, res.HadPrevious = last, ok
	if ok && last.Address == addr {
		res.Current = last
		return res, nil
	}

	rec := Record{Address: addr, ObservedAt: now.Truncate(time.Second)}
	if err := h.Append(ctx, host, rec); err != nil {
		return res, fmt.Errorf("error appending record for %s: %w", host, err)
	}
	res.Current, res.Changed = rec, true
	return res, nil
}
