package server

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/pion/rtp"
)

// Stream framings selected with ?framing=.
const (
	framingPCM = "pcm"
	framingRTP = "rtp"
)

// rtpAssembler collects RTP packets carrying L16 mono audio (RFC 3551,
// big-endian samples) and rebuilds the utterance in sequence order.
// Duplicates are dropped. Sequence numbers are extended past the 16-bit
// wrap against the highest one seen, so a packet may arrive up to 32767
// positions late in a stream of any length.
type rtpAssembler struct {
	started bool
	ssrc    uint32
	base    uint16
	highest int // extended index of the newest packet, relative to base
	packets map[int][]byte
	size    int
}

func newRTPAssembler() *rtpAssembler {
	return &rtpAssembler{packets: make(map[int][]byte)}
}

// Add parses one packet.
func (a *rtpAssembler) Add(msg []byte) error {
	var p rtp.Packet
	if err := p.Unmarshal(msg); err != nil {
		return fmt.Errorf("rtp: %w", err)
	}
	if p.Version != 2 {
		return fmt.Errorf("rtp: unsupported version %d", p.Version)
	}
	if len(p.Payload)%2 != 0 {
		return errors.New("rtp: L16 payload has an odd byte count")
	}
	if !a.started {
		a.started = true
		a.ssrc = p.SSRC
		a.base = p.SequenceNumber
	} else if p.SSRC != a.ssrc {
		return fmt.Errorf("rtp: ssrc changed from %08x to %08x", a.ssrc, p.SSRC)
	}
	last := a.base + uint16(a.highest)
	idx := a.highest + int(int16(p.SequenceNumber-last))
	a.highest = max(a.highest, idx)
	if _, dup := a.packets[idx]; dup {
		return nil
	}
	a.packets[idx] = p.Payload
	a.size += len(p.Payload)
	return nil
}

// Size returns the payload bytes collected so far.
func (a *rtpAssembler) Size() int { return a.size }

// PCM16LE returns the samples in sequence order as little-endian PCM and
// the number of packets missing from the sequence range.
func (a *rtpAssembler) PCM16LE() (data []byte, lost int) {
	if len(a.packets) == 0 {
		return nil, 0
	}
	keys := slices.Sorted(maps.Keys(a.packets))
	data = make([]byte, 0, a.size)
	for _, k := range keys {
		payload := a.packets[k]
		for i := 0; i+1 < len(payload); i += 2 {
			data = append(data, payload[i+1], payload[i])
		}
	}
	lost = keys[len(keys)-1] - keys[0] + 1 - len(keys)
	return data, lost
}
