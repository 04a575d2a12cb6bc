// Package sse frames JSON payloads as server-sent event records.
//
// Each record is a single "data:" line carrying a JSON payload, terminated by
// a blank line:
//
//	data: {"type":"text_delta","delta":"Hi"}
//
// The encoder is a pure framing transform: records are written and flushed in
// call order, never buffered across record boundaries, never merged or
// dropped. The decoder is the inverse and tolerates arbitrary chunk
// boundaries from the transport.
package sse

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// dataPrefix marks payload lines per the SSE wire format.
const dataPrefix = "data: "

// Encoder writes JSON payloads as SSE records to an underlying writer.
// If the writer implements http.Flusher, every record is flushed immediately
// so clients see events as they are produced.
//
// Encoder is not safe for concurrent use; callers serialize Encode calls.
type Encoder struct {
	w       io.Writer
	flusher http.Flusher
}

// NewEncoder returns an Encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	enc := &Encoder{w: w}
	if f, ok := w.(http.Flusher); ok {
		enc.flusher = f
	}
	return enc
}

// PrepareHeaders sets the response headers required for an SSE stream.
// Call before the first Encode.
func PrepareHeaders(h http.Header) {
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}

// Encode marshals v to JSON, writes it as one SSE record, and flushes.
func (e *Encoder) Encode(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("sse: marshal payload: %w", err)
	}
	if _, err := fmt.Fprintf(e.w, "%s%s\n\n", dataPrefix, payload); err != nil {
		return fmt.Errorf("sse: write record: %w", err)
	}
	if e.flusher != nil {
		e.flusher.Flush()
	}
	return nil
}

// Decoder reads SSE records from a byte stream. It splits on the blank-line
// delimiter regardless of how the transport chunks the bytes, so a record
// split mid-line across reads is reassembled correctly.
type Decoder struct {
	scanner *bufio.Scanner
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 4096), 1<<20)
	s.Split(splitRecords)
	return &Decoder{scanner: s}
}

// Next returns the JSON payload of the next record, or io.EOF when the
// stream ends. Records without a data line (comments, other field names)
// are skipped.
func (d *Decoder) Next() ([]byte, error) {
	for d.scanner.Scan() {
		if payload := extractData(d.scanner.Bytes()); payload != nil {
			return payload, nil
		}
	}
	if err := d.scanner.Err(); err != nil {
		return nil, fmt.Errorf("sse: read record: %w", err)
	}
	return nil, io.EOF
}

// Decode reads the next record and unmarshals its payload into v.
func (d *Decoder) Decode(v any) error {
	payload, err := d.Next()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("sse: unmarshal payload: %w", err)
	}
	return nil
}

// splitRecords is a bufio.SplitFunc producing one SSE record per token,
// delimited by a blank line.
func splitRecords(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.Index(data, []byte("\n\n")); i >= 0 {
		return i + 2, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// extractData returns the payload of the record's data line, or nil when the
// record carries none.
func extractData(record []byte) []byte {
	for _, line := range bytes.Split(record, []byte("\n")) {
		line = bytes.TrimSuffix(line, []byte("\r"))
		if rest, ok := bytes.CutPrefix(line, []byte(dataPrefix)); ok {
			return rest
		}
		// Spec allows "data:" with no space.
		if rest, ok := bytes.CutPrefix(line, []byte("data:")); ok {
			return rest
		}
	}
	return nil
}
