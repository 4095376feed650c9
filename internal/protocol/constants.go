package protocol

const (
	NonceSize   = 12
	AuthTagSize = 16
	HeaderSize  = 1 + NonceSize
	NameLenSize = 2
	MaxNameLen  = 0xFFFF

	// MaxMessageSize is the largest wire message a data channel accepts.
	MaxMessageSize = 65536
)

type Tag uint8

const (
	TagText     Tag = 0
	TagFile     Tag = 1
	TagPresence Tag = 2
)

func (t Tag) String() string {
	switch t {
	case TagText:
		return "TEXT"
	case TagFile:
		return "FILE"
	case TagPresence:
		return "PRESENCE"
	default:
		return "UNKNOWN"
	}
}

func (t Tag) valid() bool {
	return t <= TagPresence
}

const (
	presenceOnline  = "ONLINE"
	presenceOffline = "OFFLINE"
)
