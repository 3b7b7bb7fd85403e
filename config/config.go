// Package config loads the toolchain configuration: pass enablement,
// per-pass options, and the simulator cost model. Every field is
// optional; absent or malformed values fall back to documented defaults,
// malformed ones with a warning diagnostic.
package config

import (
	"encoding/json"
	"io"
	"os"

	"github.com/HamidrezaReyhani/CRZ64I/crz/diag"
	"github.com/HamidrezaReyhani/CRZ64I/crz/passes"
)

// Config is the full toolchain configuration.
type Config struct {
	// ClockHz converts cycles to wall-clock seconds.
	ClockHz float64 `json:"simClockHz"`
	// EnergyUnit scales every per-op energy cost, in joules.
	EnergyUnit float64 `json:"energyUnit"`
	// MemoryLimit bounds addressable memory in cells. 0 means unbounded;
	// negative addresses are always out of bounds.
	MemoryLimit int64 `json:"memoryLimit"`
	// MaxSteps bounds a run by instruction count. 0 means unbounded.
	// Reaching the budget halts the run with StatusBudgetExceeded.
	MaxSteps int64 `json:"maxSteps"`

	Thermal Thermal `json:"thermal"`
	Sandbox Sandbox `json:"sandbox"`

	// EnabledPasses lists the passes to run, in any order; execution
	// order is fixed by the pipeline.
	EnabledPasses []passes.Name `json:"enabledPasses"`
	Passes        passes.Config `json:"passes"`
}

// Thermal is the first-order heating/cooling model: each component gains
// heat proportional to dissipated power and decays toward the ambient
// temperature.
type Thermal struct {
	BaseTemp          float64 `json:"baseTemp"`          // ambient, degrees C
	HeatCapacity      float64 `json:"heatCapacity"`      // J/K
	ThermalResistance float64 `json:"thermalResistance"` // K/W
}

// Sandbox gates the IO and DMA opcodes. Both are denied by default.
type Sandbox struct {
	AllowIO  bool `json:"allowIO"`
	AllowDMA bool `json:"allowDMA"`
}

// Default returns the documented default configuration. The clock rate
// comes from cycle calibration against a reference host.
func Default() Config {
	return Config{
		ClockHz:    343180684.9654721,
		EnergyUnit: 1.0,
		Thermal: Thermal{
			BaseTemp:          25.0,
			HeatCapacity:      100.0,
			ThermalResistance: 0.5,
		},
	}
}

// Normalize corrects malformed values to their defaults, emitting a
// warning for each correction. It never fails.
func (c Config) Normalize() (Config, diag.List) {
	var ds diag.List
	def := Default()
	if c.ClockHz <= 0 {
		if c.ClockHz < 0 {
			ds.Add(diag.Warnf(diag.Loc{}, "simClockHz %v out of range, using default", c.ClockHz))
		}
		c.ClockHz = def.ClockHz
	}
	if c.EnergyUnit <= 0 {
		if c.EnergyUnit < 0 {
			ds.Add(diag.Warnf(diag.Loc{}, "energyUnit %v out of range, using default", c.EnergyUnit))
		}
		c.EnergyUnit = def.EnergyUnit
	}
	if c.MemoryLimit < 0 {
		ds.Add(diag.Warnf(diag.Loc{}, "memoryLimit %d out of range, treating as unbounded", c.MemoryLimit))
		c.MemoryLimit = 0
	}
	if c.MaxSteps < 0 {
		ds.Add(diag.Warnf(diag.Loc{}, "maxSteps %d out of range, treating as unbounded", c.MaxSteps))
		c.MaxSteps = 0
	}
	if c.Thermal.BaseTemp == 0 {
		c.Thermal.BaseTemp = def.Thermal.BaseTemp
	}
	if c.Thermal.HeatCapacity <= 0 {
		if c.Thermal.HeatCapacity < 0 {
			ds.Add(diag.Warnf(diag.Loc{}, "heatCapacity %v out of range, using default", c.Thermal.HeatCapacity))
		}
		c.Thermal.HeatCapacity = def.Thermal.HeatCapacity
	}
	if c.Thermal.ThermalResistance <= 0 {
		if c.Thermal.ThermalResistance < 0 {
			ds.Add(diag.Warnf(diag.Loc{}, "thermalResistance %v out of range, using default", c.Thermal.ThermalResistance))
		}
		c.Thermal.ThermalResistance = def.Thermal.ThermalResistance
	}
	return c, ds
}

// Load reads a JSON configuration, layering it over the defaults.
func Load(r io.Reader) (Config, diag.List, error) {
	c := Default()
	if err := json.NewDecoder(r).Decode(&c); err != nil {
		return Config{}, nil, err
	}
	c, ds := c.Normalize()
	return c, ds, nil
}

// LoadFile reads the configuration at path. A missing file yields the
// defaults without error.
func LoadFile(path string) (Config, diag.List, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return Default(), nil, nil
	} else if err != nil {
		return Config{}, nil, err
	}
	defer f.Close()
	return Load(f)
}
