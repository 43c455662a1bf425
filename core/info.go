package core

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/signalsfoundry/transmitter-sim/model"
)

// Info renders the part description shown to players before launch.
func (t *Transmitter) Info() string {
	c := t.cfg
	var b strings.Builder

	fmt.Fprintf(&b, "Antenna Type: %s\n", titleCase(c.Type.String()))
	fmt.Fprintf(&b, "Antenna Power Rating: %s\n", siFormat(t.EffectivePower()))
	if c.Type != model.AntennaInternal {
		fmt.Fprintf(&b, "Bandwidth: %s Mits/s\n", strconv.FormatFloat(t.EffectiveBandwidth(), 'f', -1, 64))
	}
	fmt.Fprintf(&b, "Active antenna requires: %s %s/s\n", trimFloat(t.telemetryDraw()), c.ResourceName)
	if c.Type != model.AntennaInternal {
		fmt.Fprintf(&b, "Science transmission requires: %s %s/s\n", trimFloat(t.transmitDraw()), c.ResourceName)
	} else {
		b.WriteString("Cannot transmit Science\n")
	}
	return b.String()
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func trimFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// siFormat prints v with an SI prefix and three significant digits.
func siFormat(v float64) string {
	prefixes := []struct {
		scale  float64
		symbol string
	}{
		{1e12, "T"},
		{1e9, "G"},
		{1e6, "M"},
		{1e3, "k"},
	}
	for _, p := range prefixes {
		if v >= p.scale {
			return strconv.FormatFloat(v/p.scale, 'g', 3, 64) + p.symbol
		}
	}
	return strconv.FormatFloat(v, 'g', 3, 64)
}
