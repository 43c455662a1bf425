package core

import "github.com/signalsfoundry/transmitter-sim/model"

const (
	// deployedAbove and stowedBelow bound the hysteresis band of the
	// deployment scalar. Values inside [stowedBelow, deployedAbove] keep the
	// previous state.
	deployedAbove = 0.9
	stowedBelow   = 0.1
)

// antennaState is the mutable state shared by the tracker, the accountant
// and the scheduler of one transmitter.
type antennaState struct {
	enabled  bool
	deployed bool
	busy     bool
	aborted  bool
}

// DeploymentTracker derives whether the antenna is deployed from its linked
// deployment mechanisms and gates every comm and transmit check.
type DeploymentTracker struct {
	st        *antennaState
	reporters []DeploymentReporter
	link      LinkChecker
	kind      model.AntennaType

	deployable  bool
	inverted    bool
	allowToggle bool
}

func newDeploymentTracker(st *antennaState, reporters []DeploymentReporter, link LinkChecker, kind model.AntennaType, inverted, allowToggle bool) *DeploymentTracker {
	linked := make([]DeploymentReporter, 0, len(reporters))
	for _, r := range reporters {
		if r != nil {
			linked = append(linked, r)
		}
	}
	if link == nil {
		link = LinkFunc(func() bool { return true })
	}
	d := &DeploymentTracker{
		st:          st,
		reporters:   linked,
		link:        link,
		kind:        kind,
		deployable:  len(linked) > 0,
		inverted:    inverted,
		allowToggle: allowToggle,
	}
	if !d.deployable {
		st.deployed = true
	}
	return d
}

// Refresh re-reads the deployment scalar and reports whether the deployed
// flag flipped. Fixed antennas are always deployed and never change.
func (d *DeploymentTracker) Refresh() bool {
	if !d.deployable {
		return false
	}

	scalar := d.Scalar()
	var next bool
	switch {
	case scalar > deployedAbove:
		next = !d.inverted
	case scalar < stowedBelow:
		next = d.inverted
	default:
		return false
	}
	if next == d.st.deployed {
		return false
	}

	d.st.deployed = next
	if !d.allowToggle {
		d.st.enabled = next
	}
	return true
}

// Scalar returns the least extended of the linked mechanisms, clamped to
// [0,1]. The antenna only counts as extended when every mechanism is.
func (d *DeploymentTracker) Scalar() float64 {
	if len(d.reporters) == 0 {
		return 1
	}
	least := 1.0
	for _, r := range d.reporters {
		v := r.DeployScalar()
		if v < least {
			least = v
		}
	}
	if least < 0 {
		return 0
	}
	return least
}

// Deployable reports whether the antenna has any deployment mechanism.
func (d *DeploymentTracker) Deployable() bool { return d.deployable }

// AllowToggle reports whether the operator may switch the antenna
// independently of its deployment.
func (d *DeploymentTracker) AllowToggle() bool { return d.allowToggle }

// Usable reports enabled && deployed.
func (d *DeploymentTracker) Usable() bool {
	return d.st.enabled && d.st.deployed
}

// CanComm reports whether the antenna can currently hold a command link.
func (d *DeploymentTracker) CanComm() bool {
	return d.Usable() && d.link.LinkOK()
}

// CanTransmit reports whether data may be streamed right now. Internal
// antennas never carry data.
func (d *DeploymentTracker) CanTransmit() bool {
	return d.kind != model.AntennaInternal && d.Usable() && d.link.LinkOK()
}

// CanCommUnloaded answers CanComm for a vessel that is not loaded, using
// only its persisted state. An antenna saved as disabled cannot comm; a
// snapshot without the flag defers to the link check.
func CanCommUnloaded(state *model.PersistedState, link LinkChecker) bool {
	linkOK := link == nil || link.LinkOK()
	if state == nil || state.Enabled == nil {
		return linkOK
	}
	return *state.Enabled && linkOK
}
