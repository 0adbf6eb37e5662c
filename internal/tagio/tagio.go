// Package tagio defines the tag read/write collaborator the simulation loop
// talks to and ships two backends for it: an in-process controller
// emulator and an MQTT bridge.
package tagio

import (
	"context"
	"fmt"
	"time"
)

// Tag statuses. Only StatusSuccess denotes a valid read or write; the rest
// are what the bundled backends report.
const (
	StatusSuccess = "success"
	StatusOffline = "Offline"
	StatusNoData  = "NoData"
	StatusBadTag  = "BadTag"
)

// Value is one tag sample. A nil Value under a success status is treated
// the same as a failed status.
type Value struct {
	Value  *float64
	Status string
}

// OK reports whether v carries a usable number.
func (v Value) OK() bool {
	return v.Status == StatusSuccess && v.Value != nil
}

// Float returns the sample value, or 0 when there is none.
func (v Value) Float() float64 {
	if v.Value == nil {
		return 0
	}
	return *v.Value
}

func Success(x float64) Value {
	return Value{Value: &x, Status: StatusSuccess}
}

func Failed(status string) Value {
	return Value{Status: status}
}

// TagIO reads and writes named tags on a controller. Read results are
// positionally aligned with the requested tags. A returned error means
// the transport itself failed; per-tag problems are reported through
// Value.Status.
type TagIO interface {
	Connect(ctx context.Context, address, unit string, timeout time.Duration) error
	Read(ctx context.Context, tags []string) ([]Value, error)
	Write(ctx context.Context, tag string, v float64) (Value, error)
	Close() error
}

// Opener creates a fresh, unconnected TagIO for a session.
type Opener func() (TagIO, error)

const (
	KindEmulated = "emulated"
	KindMQTT     = "mqtt"
)

type Options struct {
	Emulator EmulatorConfig
	MQTT     MQTTConfig
}

// Kinds lists the registered backends.
func Kinds() []string {
	return []string{KindEmulated, KindMQTT}
}

// Open creates a backend by kind.
func Open(kind string, opts Options) (TagIO, error) {
	switch kind {
	case KindEmulated, "":
		return NewEmulator(opts.Emulator), nil
	case KindMQTT:
		return NewMQTT(opts.MQTT), nil
	default:
		return nil, fmt.Errorf("unknown tag backend: %s", kind)
	}
}

// OpenerFor binds Open to a kind and options.
func OpenerFor(kind string, opts Options) Opener {
	return func() (TagIO, error) {
		return Open(kind, opts)
	}
}
