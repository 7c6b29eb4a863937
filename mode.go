package serial

// Mode is the traversal a mode object drives. It never changes for the
// lifetime of one mode object.
type Mode uint8

const (
	ModeNone Mode = iota
	ModeSizing
	ModePacking
	ModeUnpacking
	ModeFootprinting
)

func (m Mode) String() string {
	switch m {
	case ModeSizing:
		return "sizing"
	case ModePacking:
		return "packing"
	case ModeUnpacking:
		return "unpacking"
	case ModeFootprinting:
		return "footprinting"
	default:
		return "none"
	}
}
