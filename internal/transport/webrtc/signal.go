package webrtc

import (
	"fmt"

	"github.com/pion/webrtc/v3"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	kindOffer     = "offer"
	kindAnswer    = "answer"
	kindCandidate = "candidate"
)

type negotiation struct {
	Kind      string
	SDP       string
	Candidate webrtc.ICECandidateInit
}

func buildOfferSignal(sdp string) ([]byte, error) {
	return marshalSignal(map[string]interface{}{"kind": kindOffer, "sdp": sdp})
}

func buildAnswerSignal(sdp string) ([]byte, error) {
	return marshalSignal(map[string]interface{}{"kind": kindAnswer, "sdp": sdp})
}

func buildCandidateSignal(c webrtc.ICECandidateInit) ([]byte, error) {
	fields := map[string]interface{}{
		"kind":      kindCandidate,
		"candidate": c.Candidate,
	}
	if c.SDPMid != nil {
		fields["sdp_mid"] = *c.SDPMid
	}
	if c.SDPMLineIndex != nil {
		fields["sdp_mline_index"] = float64(*c.SDPMLineIndex)
	}
	return marshalSignal(fields)
}

func marshalSignal(fields map[string]interface{}) ([]byte, error) {
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to build signal: %w", err)
	}
	return proto.Marshal(s)
}

func parseSignal(payload []byte) (negotiation, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(payload, &s); err != nil {
		return negotiation{}, fmt.Errorf("failed to unmarshal signal: %w", err)
	}
	fields := s.GetFields()

	n := negotiation{Kind: fields["kind"].GetStringValue()}
	switch n.Kind {
	case kindOffer, kindAnswer:
		n.SDP = fields["sdp"].GetStringValue()
	case kindCandidate:
		n.Candidate.Candidate = fields["candidate"].GetStringValue()
		if v, ok := fields["sdp_mid"]; ok {
			mid := v.GetStringValue()
			n.Candidate.SDPMid = &mid
		}
		if v, ok := fields["sdp_mline_index"]; ok {
			idx := uint16(v.GetNumberValue())
			n.Candidate.SDPMLineIndex = &idx
		}
	default:
		return negotiation{}, fmt.Errorf("unknown signal kind %q", n.Kind)
	}
	return n, nil
}
