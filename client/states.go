package client

// internal channel states
type state uint64

const (
	idle state = iota + 1
	connecting
	connected
	reconnecting
	disconnected
	closed
)

func (s state) String() string {
	switch s {
	case idle:
		return "Idle"
	case connecting:
		return "Connecting"
	case connected:
		return "Connected"
	case reconnecting:
		return "Reconnecting"
	case disconnected:
		return "Disconnected"
	case closed:
		return "Closed"
	default:
		return "Unknown"
	}
}
