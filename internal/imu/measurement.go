package imu

// Measurement is one decoded 9-axis reading from a single sensor.
// Units are whatever the device reports; nothing here converts them.
type Measurement struct {
	AX float64 `json:"AX"` // accel
	AY float64 `json:"AY"`
	AZ float64 `json:"AZ"`

	GX float64 `json:"GX"` // gyro
	GY float64 `json:"GY"`
	GZ float64 `json:"GZ"`

	MX float64 `json:"MX"` // magnetometer
	MY float64 `json:"MY"`
	MZ float64 `json:"MZ"`
}

// Axes lists the axis codes in wire and column order.
var Axes = [9]string{"AX", "AY", "AZ", "GX", "GY", "GZ", "MX", "MY", "MZ"}

// Values returns the nine components in Axes order.
func (m Measurement) Values() [9]float64 {
	return [9]float64{m.AX, m.AY, m.AZ, m.GX, m.GY, m.GZ, m.MX, m.MY, m.MZ}
}

// IsZero reports whether every component is zero (the default used for
// slots that have not reported yet).
func (m Measurement) IsZero() bool {
	return m == Measurement{}
}

func (m *Measurement) set(axis string, v float64) bool {
	switch axis {
	case "AX":
		m.AX = v
	case "AY":
		m.AY = v
	case "AZ":
		m.AZ = v
	case "GX":
		m.GX = v
	case "GY":
		m.GY = v
	case "GZ":
		m.GZ = v
	case "MX":
		m.MX = v
	case "MY":
		m.MY = v
	case "MZ":
		m.MZ = v
	default:
		return false
	}
	return true
}
