package model

// DataItem is a discrete chunk of experiment data waiting to be sent home.
// Items are handled by pointer while queued or in flight; the engine never
// copies them.
type DataItem struct {
	ID        string
	Title     string
	SubjectID string

	// Size is the amount of data to move, in Mits.
	Size float64

	// Triggered is set once a transmission has been attempted on the item.
	Triggered bool

	// AllowIncomplete permits partial delivery credit if the transfer is
	// aborted after some data went through.
	AllowIncomplete bool

	// BaseTransmitValue and TransmitBonus scale the science credited for
	// the item when it is streamed.
	BaseTransmitValue float64
	TransmitBonus     float64

	// Transmitted is the amount of data actually streamed. The engine sets
	// it when the item is handed to the completion sink.
	Transmitted float64
}

// TransmitValue returns the science value multiplier used when the item
// is streamed.
func (d *DataItem) TransmitValue() float64 {
	if d == nil {
		return 0
	}
	bonus := d.TransmitBonus
	if bonus == 0 {
		bonus = 1
	}
	return d.BaseTransmitValue * bonus
}
