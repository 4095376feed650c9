package webrtc

import "github.com/pion/webrtc/v3"

const (
	DefaultLabel = "data"
	channelProto = "offgrid"
)

var DefaultSTUNServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
	"stun:stun2.l.google.com:19302",
	"stun:stun3.l.google.com:19302",
	"stun:stun4.l.google.com:19302",
}

type Config struct {
	STUNServers []string
	Label       string
}

func DefaultConfig() Config {
	return Config{
		STUNServers: DefaultSTUNServers,
		Label:       DefaultLabel,
	}
}

// ICEConfig puts every STUN url into a single ICE server entry.
func ICEConfig(stunServers []string) webrtc.Configuration {
	cfg := webrtc.Configuration{ICETransportPolicy: webrtc.ICETransportPolicyAll}
	if len(stunServers) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: stunServers}}
	}
	return cfg
}

func DataChannelConfig() *webrtc.DataChannelInit {
	protocolName := channelProto
	ordered := true
	return &webrtc.DataChannelInit{
		Ordered:        &ordered,
		MaxRetransmits: nil,
		Protocol:       &protocolName,
	}
}
