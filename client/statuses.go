package client

// Status is the connection signal published to the outside world
type Status uint64

const (
	// StatusConnected is published each time a connection is established
	StatusConnected Status = iota + 1

	// StatusReconnecting is published when the connection is lost
	// and a new attempt has been scheduled
	StatusReconnecting

	// StatusExhausted is published when the connection is lost and no
	// attempts are left. Only an explicit Open will try again.
	StatusExhausted

	// StatusClosed is published when the channel is closed by its owner
	StatusClosed
)

func (s Status) IsConnected() bool {
	return s == StatusConnected
}

func (s Status) IsDisconnected() bool {
	return s != StatusConnected
}

func (s Status) String() string {
	switch s {
	case StatusConnected:
		return "Connected"
	case StatusReconnecting:
		return "Reconnecting"
	case StatusExhausted:
		return "Exhausted"
	case StatusClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}
