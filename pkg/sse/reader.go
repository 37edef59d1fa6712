package sse

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
)

// dataPrefix is the only line framing the upstream uses.
var dataPrefix = []byte("data: ")

// Reader decodes the upstream event stream into a lazy sequence of Events.
//
// A Reader is single-use: it consumes the source until exhaustion and cannot
// be restarted. If the caller stops iterating early it must close the
// underlying body itself to release the connection.
type Reader struct {
	scanner *bufio.Scanner
}

// NewReader returns a Reader over src. Lines can carry large JSON payloads
// (image deltas, long edits), so the scanner buffer is widened well past the
// bufio default.
func NewReader(src io.Reader) *Reader {
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	return &Reader{scanner: scanner}
}

// Next returns the next decoded event from the stream. It blocks until a
// decodable "data: " line is available and returns nil, nil when the source
// is exhausted.
//
// Blank lines, keep-alives, non-data lines, and frames that fail to decode
// are skipped silently; a malformed frame never ends the stream.
func (r *Reader) Next() (*Event, error) {
	for r.scanner.Scan() {
		line := r.scanner.Bytes()
		if len(line) == 0 || !bytes.HasPrefix(line, dataPrefix) {
			continue
		}

		ev := &Event{}
		if err := json.Unmarshal(line[len(dataPrefix):], ev); err != nil {
			// Skip undecodable frames, including "[DONE]" style sentinels.
			continue
		}

		return ev, nil
	}

	if err := r.scanner.Err(); err != nil {
		return nil, err
	}

	return nil, nil
}
