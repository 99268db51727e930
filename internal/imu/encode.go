package imu

import (
	"strconv"
	"strings"
)

// Format renders m in the firmware's text frame layout
// ("AX: 0.1234 AY: ... MZ: ..."). Decode(Format(m)) yields m up to the
// printed precision. A battery level >= 0 is appended as "BAT: n".
func Format(m Measurement, battery int) string {
	var b strings.Builder
	for i, v := range m.Values() {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(Axes[i])
		b.WriteString(": ")
		b.WriteString(strconv.FormatFloat(v, 'f', 4, 64))
	}
	if battery >= 0 {
		b.WriteString(" BAT: ")
		b.WriteString(strconv.Itoa(battery))
	}
	return b.String()
}
