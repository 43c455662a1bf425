package core

// Status labels shown for an idle antenna.
const (
	StatusDisabled  = "Disabled"
	StatusRetracted = "Retracted"
	StatusIdle      = statusIdle
)

// Controls says which operator actions are currently offered.
type Controls struct {
	Start  bool
	Stop   bool
	Toggle bool
}

// Status is the externally visible state label plus the control set.
type Status struct {
	Label    string
	Controls Controls
}

// StatusInputs are everything the projection depends on.
type StatusInputs struct {
	Enabled     bool
	Deployed    bool
	Deployable  bool
	Busy        bool
	AllowToggle bool

	// BusyLabel is the label the scheduler drives while a cycle runs.
	BusyLabel string
}

// ProjectStatus derives the status from its inputs. While busy the label is
// whatever the scheduler reports.
func ProjectStatus(in StatusInputs) Status {
	usable := in.Enabled && in.Deployed

	var label string
	switch {
	case in.Busy:
		label = in.BusyLabel
		if label == "" {
			label = transmittingLabel(0)
		}
	case !in.Enabled:
		label = StatusDisabled
	case !in.Deployed:
		label = StatusRetracted
	default:
		label = StatusIdle
	}

	return Status{
		Label: label,
		Controls: Controls{
			Start:  usable && !in.Busy,
			Stop:   in.Busy,
			Toggle: in.AllowToggle || !in.Deployable,
		},
	}
}

// StatusProjector remembers the last projected status and notifies a
// listener when it changes.
type StatusProjector struct {
	last     Status
	valid    bool
	listener func(Status)
}

// Update projects in and reports whether the status changed.
func (p *StatusProjector) Update(in StatusInputs) (Status, bool) {
	next := ProjectStatus(in)
	if p.valid && next == p.last {
		return next, false
	}
	p.last = next
	p.valid = true
	if p.listener != nil {
		p.listener(next)
	}
	return next, true
}

// Current returns the last projected status.
func (p *StatusProjector) Current() Status { return p.last }
