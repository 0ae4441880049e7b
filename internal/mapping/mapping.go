// Package mapping holds the immutable entity-id -> DMX channel-range lookup
// table (§3 "MappingRange", "MappingSnapshot"; §4.2).
package mapping

import (
	"fmt"
	"sort"

	"github.com/dridi14/p1-router/internal/color"
)

// UBKey identifies one universe buffer: a controller and the universe it
// serves.
type UBKey struct {
	ControllerIP string
	Universe     int
}

func (k UBKey) String() string {
	return fmt.Sprintf("%s/%d", k.ControllerIP, k.Universe)
}

// Range is one contiguous run of entity IDs routed to a single controller
// universe (§3 "MappingRange").
type Range struct {
	From, To     int
	ControllerIP string
	Universe     int
	ChannelStart int
	Channels     []color.Channel
}

// ErrorKind enumerates the ways a raw mapping table can fail validation
// (§4.2 "validate(raw) -> MappingSnapshot | MappingError{...}").
type ErrorKind int

const (
	ErrOverlap ErrorKind = iota
	ErrOutOfRange
	ErrBadLayout
)

func (k ErrorKind) String() string {
	switch k {
	case ErrOverlap:
		return "overlap"
	case ErrOutOfRange:
		return "out_of_range"
	case ErrBadLayout:
		return "bad_layout"
	default:
		return "unknown"
	}
}

// Error reports why a raw mapping table was rejected.
type Error struct {
	Kind ErrorKind
	Msg  string
}

func (e *Error) Error() string { return fmt.Sprintf("mapping: %s: %s", e.Kind, e.Msg) }

// Snapshot is the validated, immutable lookup table (§3 "MappingSnapshot").
// Once returned by Validate it is never mutated; ranges are sorted by From
// so Resolve can binary-search (§4.2: "O(log R) resolution... ranges are
// sorted by from and binary-searched").
type Snapshot struct {
	ranges []Range
	keys   []UBKey
}

// Validate builds a Snapshot from a raw, unordered range list. Ranges must
// not overlap in entity IDs and must fit within a single DMX universe
// (§3 invariants).
func Validate(raw []Range) (*Snapshot, error) {
	ranges := make([]Range, len(raw))
	copy(ranges, raw)

	for i := range ranges {
		r := &ranges[i]
		if r.To < r.From {
			return nil, &Error{ErrOutOfRange, fmt.Sprintf("range [%d,%d]: to < from", r.From, r.To)}
		}
		if len(r.Channels) == 0 {
			r.Channels = color.DefaultLayout
		}
		if r.ChannelStart < 1 {
			return nil, &Error{ErrOutOfRange, fmt.Sprintf("range [%d,%d]: channel_start %d < 1", r.From, r.To, r.ChannelStart)}
		}
		span := len(r.Channels) * (r.To - r.From + 1)
		lastByte := r.ChannelStart + span - 1
		if lastByte > 512 {
			return nil, &Error{ErrOutOfRange, fmt.Sprintf("range [%d,%d]: channel_start %d + span %d exceeds 512", r.From, r.To, r.ChannelStart, span)}
		}
		for _, ch := range r.Channels {
			if ch > color.ChannelW {
				return nil, &Error{ErrBadLayout, fmt.Sprintf("range [%d,%d]: bad layout channel %v", r.From, r.To, ch)}
			}
		}
	}

	sort.Slice(ranges, func(i, j int) bool { return ranges[i].From < ranges[j].From })

	for i := 1; i < len(ranges); i++ {
		if ranges[i].From <= ranges[i-1].To {
			return nil, &Error{ErrOverlap, fmt.Sprintf("range [%d,%d] overlaps [%d,%d]",
				ranges[i-1].From, ranges[i-1].To, ranges[i].From, ranges[i].To)}
		}
	}

	keySet := make(map[UBKey]struct{})
	for _, r := range ranges {
		keySet[UBKey{r.ControllerIP, r.Universe}] = struct{}{}
	}
	keys := make([]UBKey, 0, len(keySet))
	for k := range keySet {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].ControllerIP != keys[j].ControllerIP {
			return keys[i].ControllerIP < keys[j].ControllerIP
		}
		return keys[i].Universe < keys[j].Universe
	})

	return &Snapshot{ranges: ranges, keys: keys}, nil
}

// Resolve finds the MappingRange covering id, returning the universe-buffer
// key, DMX byte offset (0-indexed into the 512-byte frame), and channel
// layout (§4.2: "resolve(id) -> Option<(ub_key, offset, layout)>").
func (s *Snapshot) Resolve(id int) (key UBKey, offset int, layout []color.Channel, ok bool) {
	// Binary search for the range whose From is <= id, then check To.
	i := sort.Search(len(s.ranges), func(i int) bool { return s.ranges[i].From > id }) - 1
	if i < 0 || i >= len(s.ranges) {
		return UBKey{}, 0, nil, false
	}
	r := s.ranges[i]
	if id < r.From || id > r.To {
		return UBKey{}, 0, nil, false
	}
	offset = r.ChannelStart - 1 + (id-r.From)*len(r.Channels)
	return UBKey{r.ControllerIP, r.Universe}, offset, r.Channels, true
}

// Keys enumerates every universe buffer this snapshot requires (§4.2).
func (s *Snapshot) Keys() []UBKey {
	return s.keys
}

// Empty returns a Snapshot with no ranges, used before the first mapping is
// published.
func Empty() *Snapshot {
	return &Snapshot{}
}
