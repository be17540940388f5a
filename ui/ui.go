package ui

// ColorLed is the status light on the front of the box. A single color
// is lit at a time.
type ColorLed interface {
	Green()
	Red()
	Yellow()
	Blue()
	Off()
}

// Button identifies one of the physical push buttons.
type Button int

const (
	VolumeUp Button = iota
	VolumeDown
)

func (b Button) String() string {
	switch b {
	case VolumeUp:
		return "volume up"
	case VolumeDown:
		return "volume down"
	}
	return "unknown"
}

// ButtonEvent is emitted on every stable press or release.
type ButtonEvent struct {
	Button  Button
	Pressed bool
}
