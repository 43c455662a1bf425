package config

import (
	"errors"
	"fmt"

	"github.com/signalsfoundry/transmitter-sim/model"
)

// Action names a scenario event.
type Action string

const (
	ActionEnqueue    Action = "enqueue"
	ActionTransmit   Action = "transmit"
	ActionStart      Action = "start"
	ActionStop       Action = "stop"
	ActionEnable     Action = "enable"
	ActionDisable    Action = "disable"
	ActionToggle     Action = "toggle"
	ActionDeploy     Action = "deploy"
	ActionRetract    Action = "retract"
	ActionLinkUp     Action = "link_up"
	ActionLinkDown   Action = "link_down"
	ActionMultiplier Action = "multiplier"
	ActionGeneration Action = "generation"
)

// EventConfig is one timed scenario action.
type EventConfig struct {
	At     Duration `yaml:"at"`
	Action Action   `yaml:"action"`

	Antenna   string   `yaml:"antenna,omitempty"`
	Items     []string `yaml:"items,omitempty"`
	Mechanism string   `yaml:"mechanism,omitempty"`

	// Multiplier fields. A missing value removes the contribution.
	Category string   `yaml:"category,omitempty"`
	Name     string   `yaml:"name,omitempty"`
	Value    *float64 `yaml:"value,omitempty"`

	Generation float64 `yaml:"generation,omitempty"`
}

func (ev EventConfig) validate(antennas, mechanisms, items map[string]bool) error {
	if ev.At.Duration < 0 {
		return errors.New("negative time")
	}
	needAntenna := func() error {
		if !antennas[ev.Antenna] {
			return fmt.Errorf("unknown antenna %q", ev.Antenna)
		}
		return nil
	}

	switch ev.Action {
	case ActionEnqueue, ActionTransmit:
		if err := needAntenna(); err != nil {
			return err
		}
		for _, id := range ev.Items {
			if !items[id] {
				return fmt.Errorf("unknown item %q", id)
			}
		}
	case ActionStart, ActionStop, ActionEnable, ActionDisable, ActionToggle:
		return needAntenna()
	case ActionDeploy, ActionRetract:
		if !mechanisms[ev.Mechanism] {
			return fmt.Errorf("unknown mechanism %q", ev.Mechanism)
		}
	case ActionMultiplier:
		if err := needAntenna(); err != nil {
			return err
		}
		if _, err := model.ParseCategory(ev.Category); err != nil {
			return err
		}
		if ev.Name == "" {
			return errors.New("multiplier without name")
		}
	case ActionLinkUp, ActionLinkDown:
	case ActionGeneration:
		if ev.Generation < 0 {
			return errors.New("negative generation")
		}
	default:
		return fmt.Errorf("unknown action %q", ev.Action)
	}
	return nil
}
