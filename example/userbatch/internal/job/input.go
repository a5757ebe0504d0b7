package job

import (
	"bytes"
	"io"
	"os"

	"github.com/cockroachdb/errors"
)

// Input is the document handed to the JSON-fed jobs, either a file path or inline data.
type Input struct {
	Path string
	Data []byte
}

// ErrNoInput is returned when a JSON-fed job runs without input.
var ErrNoInput = errors.New("no input given; use --input <file>")

// Open opens the input for one invocation.
func (in *Input) Open() (io.ReadCloser, error) {
	switch {
	case in == nil:
		return nil, ErrNoInput
	case in.Data != nil:
		return io.NopCloser(bytes.NewReader(in.Data)), nil
	case in.Path != "":
		f, err := os.Open(in.Path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to open input '%s'", in.Path)
		}
		return f, nil
	default:
		return nil, ErrNoInput
	}
}
