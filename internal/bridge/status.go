package bridge

// Status is the connection state of a Bridge
type Status string

const (
	StatusIdle         Status = "idle"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
	StatusError        Status = "error"
)

func (s Status) String() string {
	return string(s)
}
