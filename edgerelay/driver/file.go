package driver

import (
	"context"
	"os"

	rerrors "github.com/nonibytes/edgerelay/edgerelay/errors"
	"github.com/nonibytes/edgerelay/edgerelay/record"
)

// File replays records from a JSON array or JSON-lines file on every
// gather. Sites that export points through another tool drop them here.
type File struct {
	name   string
	device string
	path   string
}

func NewFile(name, device, path string) *File {
	return &File{name: name, device: device, path: path}
}

func (f *File) Name() string { return f.name }

func (f *File) Gather(ctx context.Context) ([]record.RawRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fh, err := os.Open(f.path)
	if err != nil {
		return nil, rerrors.DeviceError(f.name, "open records file", err)
	}
	defer fh.Close()

	bodies, err := record.DecodeRecords(fh)
	if err != nil {
		return nil, rerrors.DeviceError(f.name, "decode records file", err)
	}
	out := make([]record.RawRecord, len(bodies))
	for i, b := range bodies {
		out[i] = record.RawRecord{Device: f.device, Body: b}
	}
	return out, nil
}

func (f *File) Reset() {}
