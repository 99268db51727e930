package connection

import (
	"time"

	"github.com/relabs-tech/motion_assessment/internal/device"
)

// Severity of a user-facing notice.
type Severity int

const (
	Info Severity = iota
	Warning
	Error
	Critical
)

func (s Severity) String() string {
	switch s {
	case Info:
		return "info"
	case Warning:
		return "warning"
	case Error:
		return "error"
	default:
		return "critical"
	}
}

func (s Severity) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Notice is something the operator should see, such as a sensor dropping
// out in the middle of a test.
type Notice struct {
	Slot     device.SlotID `json:"slot,omitempty"`
	Severity Severity      `json:"severity"`
	Message  string        `json:"message"`
	Time     time.Time     `json:"time"`
}

// Notifier receives notices. Implementations must not block.
type Notifier interface {
	Notify(Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }
