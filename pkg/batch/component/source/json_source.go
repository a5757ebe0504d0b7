package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
)

// JSONArraySource decodes the elements of a top-level JSON array one at a time.
// A malformed element is a source failure.
type JSONArraySource[T any] struct {
	name    string
	r       io.Reader
	dec     *json.Decoder
	started bool
	done    bool
}

// NewJSONArraySource creates a source reading a JSON array from r.
func NewJSONArraySource[T any](name string, r io.Reader) *JSONArraySource[T] {
	return &JSONArraySource[T]{name: name, r: r}
}

// NewJSONArraySourceFromBytes creates a source over an in-memory JSON document.
func NewJSONArraySourceFromBytes[T any](name string, data []byte) *JSONArraySource[T] {
	return NewJSONArraySource[T](name, bytes.NewReader(data))
}

// Read decodes the next array element.
func (s *JSONArraySource[T]) Read(ctx context.Context) (T, error) {
	var item T
	if s.done {
		return item, port.ErrNoMoreItems
	}
	if !s.started {
		s.dec = json.NewDecoder(s.r)
		tok, err := s.dec.Token()
		if err == io.EOF {
			s.done = true
			return item, port.ErrNoMoreItems
		}
		if err != nil {
			return item, s.fail("failed to read JSON input", err)
		}
		if delim, ok := tok.(json.Delim); !ok || delim != '[' {
			return item, s.fail(fmt.Sprintf("expected a JSON array, got %v", tok), nil)
		}
		s.started = true
	}

	if !s.dec.More() {
		if _, err := s.dec.Token(); err != nil {
			return item, s.fail("failed to read end of JSON array", err)
		}
		s.done = true
		return item, port.ErrNoMoreItems
	}
	if err := s.dec.Decode(&item); err != nil {
		return item, s.fail("failed to decode JSON array element", err)
	}
	return item, nil
}

// Close closes the underlying reader when it is an io.Closer, such as an *os.File.
func (s *JSONArraySource[T]) Close(ctx context.Context) error {
	s.done = true
	if c, ok := s.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (s *JSONArraySource[T]) fail(msg string, err error) error {
	s.done = true
	return exception.NewBatchError("reader", fmt.Sprintf("JSONArraySource '%s': %s", s.name, msg), err, false, false)
}

var (
	_ port.Source[any] = (*JSONArraySource[any])(nil)
	_ port.Closer      = (*JSONArraySource[any])(nil)
)
