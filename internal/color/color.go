// Package color defines the small, closed set of DMX color components a
// lighting entity can carry and the channel layouts they are projected
// through.
package color

import "fmt"

// Sample is a single entity's color state. W is ignored by layouts that
// don't include it.
type Sample struct {
	R, G, B, W uint8
}

// Channel is one output component in a MappingRange's layout. The set is
// closed by design (§9: "implement as a tagged variant rather than an
// interface, to keep the router hot loop allocation-free and
// branch-predictable").
type Channel uint8

const (
	ChannelR Channel = iota
	ChannelG
	ChannelB
	ChannelW
)

func (c Channel) String() string {
	switch c {
	case ChannelR:
		return "R"
	case ChannelG:
		return "G"
	case ChannelB:
		return "B"
	case ChannelW:
		return "W"
	default:
		return "?"
	}
}

// Component returns the sample's byte for this channel.
func (c Channel) Component(s Sample) uint8 {
	switch c {
	case ChannelR:
		return s.R
	case ChannelG:
		return s.G
	case ChannelB:
		return s.B
	case ChannelW:
		return s.W
	default:
		return 0
	}
}

// ParseChannel maps a single letter ("R","G","B","W") to a Channel.
func ParseChannel(letter string) (Channel, error) {
	switch letter {
	case "R", "r":
		return ChannelR, nil
	case "G", "g":
		return ChannelG, nil
	case "B", "b":
		return ChannelB, nil
	case "W", "w":
		return ChannelW, nil
	default:
		return 0, fmt.Errorf("color: bad layout letter %q", letter)
	}
}

// DefaultLayout is the §6 default when a MappingRange omits `channels`.
var DefaultLayout = []Channel{ChannelR, ChannelG, ChannelB}

// Project writes the sample's bytes for each channel of layout into dst,
// in layout order. dst must be at least len(layout) bytes.
func Project(layout []Channel, s Sample, dst []byte) {
	for i, ch := range layout {
		dst[i] = ch.Component(s)
	}
}
