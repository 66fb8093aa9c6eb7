// Package driver defines how the agent reads records from BMS devices and
// provides the drivers shipped with it.
package driver

import (
	"context"

	"github.com/nonibytes/edgerelay/edgerelay/record"
)

// Driver reads the current records of one device. Gather must be safe to
// call again after an error. Reset drops any discovery state so the next
// Gather starts from scratch.
type Driver interface {
	Name() string
	Gather(ctx context.Context) ([]record.RawRecord, error)
	Reset()
}
