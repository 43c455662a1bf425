package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/transmitter-sim/core"
	"github.com/signalsfoundry/transmitter-sim/internal/logging"
	"github.com/signalsfoundry/transmitter-sim/internal/observability"
	"github.com/signalsfoundry/transmitter-sim/internal/sim/orbit"
	"github.com/signalsfoundry/transmitter-sim/model"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// Factors converting packet-based antenna definitions into rates.
const (
	legacyConsumptionFactor = 0.25
	legacyTelemetryFactor   = 0.1
	legacyDataRateFactor    = 0.25
)

// Duration wraps time.Duration to support YAML unmarshalling from strings.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses duration strings like "5s" or "1m".
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return fmt.Errorf("duration value node is nil")
	}
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("decode duration: %w", err)
	}
	if raw == "" {
		d.Duration = 0
		return nil
	}
	dur, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = dur
	return nil
}

// MarshalYAML renders the duration as a string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// SimulationConfig controls the tick loop.
type SimulationConfig struct {
	Tick     Duration `yaml:"tick"`
	Duration Duration `yaml:"duration"`
	Mode     string   `yaml:"mode"` // realtime | accelerated

	// ConsumptionMultiplier scales telemetry draw of every antenna. It never
	// touches the draw of science transmission.
	ConsumptionMultiplier *float64 `yaml:"consumption_multiplier"`
}

// NotifyConfig throttles operator notifications in simulated time.
type NotifyConfig struct {
	MinInterval Duration `yaml:"min_interval"`
	Burst       int      `yaml:"burst"`
}

// PersistConfig locates the snapshot file.
type PersistConfig struct {
	SnapshotFile string `yaml:"snapshot_file"`
}

// MultiplierConfig points at an externally edited contributions file.
type MultiplierConfig struct {
	File     string   `yaml:"file"`
	Debounce Duration `yaml:"debounce"`
}

// MechanismConfig describes one deployment mechanism.
type MechanismConfig struct {
	Name  string  `yaml:"name"`
	Start float64 `yaml:"start"`
	Speed float64 `yaml:"speed"`
}

// VesselConfig describes the craft carrying the antennas.
type VesselConfig struct {
	ID         string            `yaml:"id"`
	Resource   string            `yaml:"resource"`
	Amount     float64           `yaml:"amount"`
	Capacity   float64           `yaml:"capacity"`
	Generation float64           `yaml:"generation"`
	LinkUp     *bool             `yaml:"link_up"`
	Mechanisms []MechanismConfig `yaml:"mechanisms"`

	// Orbit, when set, gates the link on ground station visibility.
	Orbit *OrbitConfig `yaml:"orbit"`
}

// OrbitConfig places the vessel on a TLE orbit.
type OrbitConfig struct {
	TLELine1 string          `yaml:"tle_line1"`
	TLELine2 string          `yaml:"tle_line2"`
	Stations []StationConfig `yaml:"stations"`
}

// StationConfig is one ground station.
type StationConfig struct {
	ID           string  `yaml:"id"`
	Latitude     float64 `yaml:"latitude"`
	Longitude    float64 `yaml:"longitude"`
	AltitudeKm   float64 `yaml:"altitude_km"`
	MinElevation float64 `yaml:"min_elevation"`
}

// Tracker builds the visibility tracker for the orbit.
func (o *OrbitConfig) Tracker() (*orbit.Tracker, error) {
	prop, err := orbit.NewSGP4(o.TLELine1, o.TLELine2)
	if err != nil {
		return nil, err
	}
	stations := make([]orbit.GroundStation, 0, len(o.Stations))
	for _, st := range o.Stations {
		stations = append(stations, orbit.GroundStation{
			ID:              st.ID,
			LatDeg:          st.Latitude,
			LonDeg:          st.Longitude,
			AltKm:           st.AltitudeKm,
			MinElevationDeg: st.MinElevation,
		})
	}
	return orbit.NewTracker(prop, stations...), nil
}

// AntennaConfig describes one transmitter. Rates left out are derived from
// the packet fields.
type AntennaConfig struct {
	ID    string `yaml:"id"`
	Title string `yaml:"title"`
	Type  string `yaml:"type"`

	AntennaPower             float64  `yaml:"antenna_power"`
	TransmitDataRate         *float64 `yaml:"transmit_data_rate"`
	TransmitConsumptionRate  *float64 `yaml:"transmit_consumption_rate"`
	TelemetryConsumptionRate *float64 `yaml:"telemetry_consumption_rate"`

	PacketInterval     float64 `yaml:"packet_interval"`
	PacketSize         float64 `yaml:"packet_size"`
	PacketResourceCost float64 `yaml:"packet_resource_cost"`

	XmitIncomplete   bool     `yaml:"xmit_incomplete"`
	AllowToggle      bool     `yaml:"allow_toggle"`
	InvertDeployment bool     `yaml:"invert_deployment"`
	Enabled          *bool    `yaml:"enabled"`
	Mechanisms       []string `yaml:"mechanisms"`
	NotifyInterval   Duration `yaml:"notify_interval"`
}

// SubjectConfig seeds the science archive.
type SubjectConfig struct {
	ID         string  `yaml:"id"`
	Title      string  `yaml:"title"`
	ScienceCap float64 `yaml:"science_cap"`
	DataScale  float64 `yaml:"data_scale"`
}

// ItemConfig is a data item stored aboard at start.
type ItemConfig struct {
	ID                string  `yaml:"id"`
	Title             string  `yaml:"title"`
	Subject           string  `yaml:"subject"`
	Size              float64 `yaml:"size"`
	AllowIncomplete   bool    `yaml:"allow_incomplete"`
	BaseTransmitValue float64 `yaml:"base_transmit_value"`
	TransmitBonus     float64 `yaml:"transmit_bonus"`
}

// Config is the root configuration structure for the simulator.
type Config struct {
	Logging     logging.Config              `yaml:"logging"`
	Tracing     observability.TracingConfig `yaml:"tracing"`
	MetricsAddr string                      `yaml:"metrics_addr"`
	HealthAddr  string                      `yaml:"health_addr"`

	Simulation    SimulationConfig `yaml:"simulation"`
	Notifications NotifyConfig     `yaml:"notifications"`
	Persistence   PersistConfig    `yaml:"persistence"`
	Multipliers   MultiplierConfig `yaml:"multipliers"`

	Vessel   VesselConfig    `yaml:"vessel"`
	Antennas []AntennaConfig `yaml:"antennas"`
	Subjects []SubjectConfig `yaml:"subjects"`
	Items    []ItemConfig    `yaml:"items"`
	Events   []EventConfig   `yaml:"events"`
}

// Load reads, decodes, defaults and validates the configuration file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(raw)
}

// Parse decodes raw YAML, applies defaults and validates the result.
func Parse(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Simulation.Tick.Duration <= 0 {
		c.Simulation.Tick.Duration = time.Second
	}
	if c.Simulation.Mode == "" {
		c.Simulation.Mode = "accelerated"
	}
	if c.Simulation.ConsumptionMultiplier == nil {
		one := 1.0
		c.Simulation.ConsumptionMultiplier = &one
	}
	if c.Notifications.Burst <= 0 {
		c.Notifications.Burst = 5
	}
	if c.Multipliers.Debounce.Duration <= 0 {
		c.Multipliers.Debounce.Duration = 200 * time.Millisecond
	}
	if c.Vessel.ID == "" {
		c.Vessel.ID = "vessel"
	}
	if c.Vessel.Resource == "" {
		c.Vessel.Resource = "ElectricCharge"
	}
	for i := range c.Antennas {
		c.Antennas[i].ApplyDefaults()
	}
	for i := range c.Items {
		it := &c.Items[i]
		if it.Title == "" {
			it.Title = it.ID
		}
		if it.BaseTransmitValue == 0 {
			it.BaseTransmitValue = 1
		}
	}
	c.Tracing.ApplyDefaults()
}

// ApplyDefaults derives missing rates from the packet fields.
func (a *AntennaConfig) ApplyDefaults() {
	if a.Title == "" {
		a.Title = a.ID
	}
	if a.TransmitConsumptionRate == nil {
		v := 0.0
		if a.PacketInterval > 0 {
			v = a.PacketResourceCost / a.PacketInterval * legacyConsumptionFactor
		}
		a.TransmitConsumptionRate = &v
	}
	if a.TelemetryConsumptionRate == nil {
		v := *a.TransmitConsumptionRate * legacyTelemetryFactor
		a.TelemetryConsumptionRate = &v
	}
	if a.TransmitDataRate == nil {
		v := 0.0
		if a.PacketInterval > 0 {
			v = a.PacketSize / a.PacketInterval * legacyDataRateFactor
		}
		a.TransmitDataRate = &v
	}
}

// Validate checks cross references and ranges.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if m := c.Simulation.ConsumptionMultiplier; m != nil && (*m < 0 || *m > 2) {
		add("simulation.consumption_multiplier must be within [0,2]")
	}
	if c.Vessel.Amount < 0 || c.Vessel.Capacity < 0 {
		add("vessel resources must not be negative")
	}

	if o := c.Vessel.Orbit; o != nil {
		if _, err := o.Tracker(); err != nil {
			add("vessel.orbit: %v", err)
		}
		if len(o.Stations) == 0 {
			add("vessel.orbit needs at least one station")
		}
		for _, st := range o.Stations {
			if st.Latitude < -90 || st.Latitude > 90 || st.Longitude < -180 || st.Longitude > 180 {
				add("station %q: coordinates out of range", st.ID)
			}
		}
	}

	mechanisms := make(map[string]bool)
	for _, m := range c.Vessel.Mechanisms {
		if m.Name == "" {
			add("vessel mechanism without name")
			continue
		}
		if mechanisms[m.Name] {
			add("duplicate mechanism %q", m.Name)
		}
		mechanisms[m.Name] = true
	}

	antennas := make(map[string]bool)
	if len(c.Antennas) == 0 {
		add("at least one antenna is required")
	}
	for _, a := range c.Antennas {
		if a.ID == "" {
			add("antenna without id")
			continue
		}
		if antennas[a.ID] {
			add("duplicate antenna %q", a.ID)
		}
		antennas[a.ID] = true
		if _, err := model.ParseAntennaType(a.Type); err != nil {
			add("antenna %q: %v", a.ID, err)
		}
		if a.PacketInterval < 0 {
			add("antenna %q: packet_interval must not be negative", a.ID)
		}
		for _, r := range []*float64{a.TransmitDataRate, a.TransmitConsumptionRate, a.TelemetryConsumptionRate} {
			if r != nil && *r < 0 {
				add("antenna %q: rates must not be negative", a.ID)
				break
			}
		}
		for _, m := range a.Mechanisms {
			if !mechanisms[m] {
				add("antenna %q: unknown mechanism %q", a.ID, m)
			}
		}
	}

	subjects := make(map[string]bool)
	for _, s := range c.Subjects {
		if s.ID == "" {
			add("subject without id")
			continue
		}
		subjects[s.ID] = true
	}
	items := make(map[string]bool)
	for _, it := range c.Items {
		if it.ID == "" {
			add("item without id")
			continue
		}
		if items[it.ID] {
			add("duplicate item %q", it.ID)
		}
		items[it.ID] = true
		if it.Size < 0 {
			add("item %q: size must not be negative", it.ID)
		}
	}

	for i, ev := range c.Events {
		if err := ev.validate(antennas, mechanisms, items); err != nil {
			add("event %d (%s): %v", i, ev.Action, err)
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// EnabledOr returns the configured initial activation, or def.
func (a AntennaConfig) EnabledOr(def bool) bool {
	if a.Enabled == nil {
		return def
	}
	return *a.Enabled
}

// LinkInitiallyUp reports the initial link window state; default open.
func (v VesselConfig) LinkInitiallyUp() bool {
	return v.LinkUp == nil || *v.LinkUp
}

// DataItem builds the model item.
func (it ItemConfig) DataItem() *model.DataItem {
	return &model.DataItem{
		ID:                it.ID,
		Title:             it.Title,
		SubjectID:         it.Subject,
		Size:              it.Size,
		AllowIncomplete:   it.AllowIncomplete,
		BaseTransmitValue: it.BaseTransmitValue,
		TransmitBonus:     it.TransmitBonus,
	}
}

// TransmitterConfig converts the antenna entry into an engine config for
// an antenna aboard vessel.
func (c *Config) TransmitterConfig(a AntennaConfig) (core.Config, error) {
	kind, err := model.ParseAntennaType(a.Type)
	if err != nil {
		return core.Config{}, fmt.Errorf("%w: antenna %q: %v", ErrInvalid, a.ID, err)
	}
	a.ApplyDefaults()
	return core.Config{
		ID:                       a.ID,
		Title:                    a.Title,
		VesselID:                 c.Vessel.ID,
		Type:                     kind,
		AntennaPower:             a.AntennaPower,
		TransmitDataRate:         *a.TransmitDataRate,
		TransmitConsumptionRate:  *a.TransmitConsumptionRate,
		TelemetryConsumptionRate: *a.TelemetryConsumptionRate,
		TelemetryFactor:          c.Simulation.ConsumptionMultiplier,
		ResourceName:             c.Vessel.Resource,
		XmitIncomplete:           a.XmitIncomplete,
		AllowToggle:              a.AllowToggle,
		InvertDeployment:         a.InvertDeployment,
		Enabled:                  a.EnabledOr(true),
		NotifyInterval:           a.NotifyInterval.Duration,
	}, nil
}
