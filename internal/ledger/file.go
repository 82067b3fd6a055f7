package ledger

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

const maxLineSize = 4 << 20

// FileLog is a Log backed by a newline-delimited JSON file. Unparseable
// lines, including a torn trailing line, are treated as absent.
type FileLog struct {
	path string
	mu   sync.Mutex
}

// NewFileLog returns a FileLog at path. The file is created on first append.
func NewFileLog(path string) *FileLog {
	return &FileLog{path: path}
}

// Path returns the ledger file location.
func (l *FileLog) Path() string { return l.path }

// Append writes records to the end of the file in one write.
func (l *FileLog) Append(_ context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("creating ledger dir: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening ledger: %w", err)
	}
	defer f.Close()

	var buf []byte
	torn, err := endsWithoutNewline(f)
	if err != nil {
		return fmt.Errorf("inspecting ledger tail: %w", err)
	}
	if torn {
		buf = append(buf, '\n')
	}
	for _, r := range records {
		b, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encoding record for %s: %w", r.URL, err)
		}
		buf = append(buf, b...)
		buf = append(buf, '\n')
	}
	if _, err := f.Write(buf); err != nil {
		return fmt.Errorf("appending to ledger: %w", err)
	}
	return f.Sync()
}

func endsWithoutNewline(f *os.File) (bool, error) {
	info, err := f.Stat()
	if err != nil {
		return false, err
	}
	if info.Size() == 0 {
		return false, nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, info.Size()-1); err != nil {
		return false, err
	}
	return last[0] != '\n', nil
}

// Succeeded replays the file and collects URLs with an ok record.
func (l *FileLog) Succeeded(ctx context.Context) (map[string]struct{}, error) {
	records, err := l.Records(ctx)
	if err != nil {
		return nil, err
	}
	done := make(map[string]struct{}, len(records))
	for _, r := range records {
		if r.OK && r.URL != "" {
			done[r.URL] = struct{}{}
		}
	}
	return done, nil
}

// Records replays the file. A missing file is an empty ledger.
func (l *FileLog) Records(_ context.Context) ([]Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode reads records from r, skipping lines that do not decode to a
// record with a URL ("null", "{}" and garbage included).
func Decode(r io.Reader) ([]Record, error) {
	br := bufio.NewReaderSize(r, 64*1024)
	var records []Record
	for {
		line, err := readLine(br)
		if len(line) > 0 {
			var rec Record
			if json.Unmarshal(line, &rec) == nil && rec.URL != "" {
				records = append(records, rec)
			}
		}
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return records, fmt.Errorf("reading ledger: %w", err)
		}
	}
}

// readLine returns the next line without its terminator. Lines longer than
// maxLineSize are consumed and returned empty.
func readLine(br *bufio.Reader) ([]byte, error) {
	var line []byte
	tooLong := false
	for {
		chunk, err := br.ReadSlice('\n')
		if !tooLong {
			line = append(line, chunk...)
			if len(line) > maxLineSize {
				tooLong = true
				line = nil
			}
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		if tooLong {
			return nil, err
		}
		for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
			line = line[:len(line)-1]
		}
		return line, err
	}
}
