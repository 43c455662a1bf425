package model

import (
	"fmt"
	"strings"
)

// AntennaType classifies what an antenna can be used for.
type AntennaType int

const (
	// AntennaDirect antennas talk directly to the home network.
	AntennaDirect AntennaType = iota
	// AntennaRelay antennas can additionally relay for other vessels.
	AntennaRelay
	// AntennaInternal antennas only keep a command link; they never carry data.
	AntennaInternal
)

func (t AntennaType) String() string {
	switch t {
	case AntennaDirect:
		return "direct"
	case AntennaRelay:
		return "relay"
	case AntennaInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// ParseAntennaType maps a config string onto an AntennaType.
func ParseAntennaType(s string) (AntennaType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "direct":
		return AntennaDirect, nil
	case "relay":
		return AntennaRelay, nil
	case "internal":
		return AntennaInternal, nil
	default:
		return AntennaDirect, fmt.Errorf("unknown antenna type %q", s)
	}
}

// Category selects one of the three rates an antenna exposes to multipliers.
type Category int

const (
	CategoryPower Category = iota
	CategoryBandwidth
	CategoryConsumption
)

// Categories lists every multiplier category in a stable order.
var Categories = []Category{CategoryPower, CategoryBandwidth, CategoryConsumption}

func (c Category) String() string {
	switch c {
	case CategoryPower:
		return "power"
	case CategoryBandwidth:
		return "bandwidth"
	case CategoryConsumption:
		return "consumption"
	default:
		return "unknown"
	}
}

// ParseCategory maps a config string onto a Category.
func ParseCategory(s string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "power":
		return CategoryPower, nil
	case "bandwidth":
		return CategoryBandwidth, nil
	case "consumption":
		return CategoryConsumption, nil
	default:
		return CategoryPower, fmt.Errorf("unknown multiplier category %q", s)
	}
}

// Multiplier is a named factor contributed to one rate category.
type Multiplier struct {
	Name  string
	Value float64
}

// PersistedState is the part of an antenna that survives save/load.
// Multipliers are not saved; contributors re-register them
// after a reload.
type PersistedState struct {
	// Enabled is a pointer so an unloaded snapshot can tell "never saved"
	// apart from "saved as disabled".
	Enabled  *bool `yaml:"enabled,omitempty"`
	Deployed bool  `yaml:"deployed"`

	AntennaPower             float64 `yaml:"antenna_power"`
	TransmitDataRate         float64 `yaml:"transmit_data_rate"`
	TransmitConsumptionRate  float64 `yaml:"transmit_consumption_rate"`
	TelemetryConsumptionRate float64 `yaml:"telemetry_consumption_rate"`
	XmitIncomplete           bool    `yaml:"xmit_incomplete"`
}

// EnabledOr returns the persisted enabled flag, or def when it was never saved.
func (p *PersistedState) EnabledOr(def bool) bool {
	if p == nil || p.Enabled == nil {
		return def
	}
	return *p.Enabled
}
