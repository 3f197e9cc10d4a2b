package config

import (
	"net/netip"

	"github.com/bastiangx/slynkserve/internal/utils"
)

// ValueStatus is the verdict on one config value.
type ValueStatus int

const (
	ValueOk ValueStatus = iota
	ValueMissing
	ValueInvalid
)

func (s ValueStatus) String() string {
	switch s {
	case ValueOk:
		return "ok"
	case ValueMissing:
		return "missing"
	default:
		return "invalid"
	}
}

// ValueReport pairs a status with the value it was computed for.
type ValueReport struct {
	Status ValueStatus `msgpack:"status"`
	Value  string      `msgpack:"value"`
}

// Diagnostics reports whether the config can start a session.
type Diagnostics struct {
	Ok          bool        `msgpack:"ok"`
	RuntimePath ValueReport `msgpack:"runtime_path"`
	CorePath    ValueReport `msgpack:"core_path"`
	Address     ValueReport `msgpack:"address"`
}

// Diagnose checks that configured files exist and the address is an
// ip:port pair. Missing runtime or core paths are allowed: the first
// means attach mode, the second means the runtime's default image.
func Diagnose(cfg *Config) Diagnostics {
	d := Diagnostics{
		RuntimePath: fileStatus(cfg.Runtime.Path),
		CorePath:    fileStatus(cfg.Runtime.Core),
		Address:     ValueReport{Status: ValueOk, Value: cfg.Slynk.Address},
	}
	if _, err := netip.ParseAddrPort(cfg.Slynk.Address); err != nil {
		d.Address.Status = ValueInvalid
	}
	d.Ok = d.Address.Status == ValueOk &&
		d.RuntimePath.Status != ValueInvalid &&
		d.CorePath.Status != ValueInvalid
	return d
}

func fileStatus(path string) ValueReport {
	switch {
	case path == "":
		return ValueReport{Status: ValueMissing}
	case utils.FileExists(path):
		return ValueReport{Status: ValueOk, Value: path}
	default:
		return ValueReport{Status: ValueInvalid, Value: path}
	}
}
