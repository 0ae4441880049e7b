// Package patch implements the channel-level rewrite layer used to
// compensate for field wiring failures (§3 "PatchRule", "PatchSnapshot";
// §4.3).
package patch

import "fmt"

// Rule rewrites one DMX byte after the router has written a frame: copy
// src_channel's value into dst_channel, within the same universe
// (1-indexed channels, same convention as MappingRange.ChannelStart).
type Rule struct {
	Universe     int
	SrcChannel   int
	DstChannel   int
}

// ErrorKind enumerates why a raw rule list was rejected (§4.3
// "validate(rules) -> PatchSnapshot | PatchError{Cycle, OutOfRange}").
type ErrorKind int

const (
	ErrCycle ErrorKind = iota
	ErrOutOfRange
)

func (k ErrorKind) String() string {
	if k == ErrCycle {
		return "cycle"
	}
	return "out_of_range"
}

// Error reports why a raw patch rule list was rejected.
type Error struct {
	Kind ErrorKind
	Msg  string
}

func (e *Error) Error() string { return fmt.Sprintf("patch: %s: %s", e.Kind, e.Msg) }

// Snapshot is the validated, immutable, per-universe-grouped rule set
// (§3 "PatchSnapshot"; §4.3 "Rules are grouped by universe at load time").
// The runtime enabled/disabled toggle lives outside the snapshot (see
// emitter.Emitter.SetPatchEnabled) since §4.6's set_patch_enabled must take effect
// without republishing a snapshot.
type Snapshot struct {
	byUniverse map[int][]Rule
}

// Validate builds a Snapshot from a raw, declaration-ordered rule list.
// Channels must be in [1,512]; the src->dst relation, viewed as a directed
// graph per universe, must be acyclic (§9 "model rules as a directed graph
// on channels; reject on any cycle").
func Validate(raw []Rule) (*Snapshot, error) {
	byUniverse := make(map[int][]Rule)
	for _, r := range raw {
		if r.SrcChannel < 1 || r.SrcChannel > 512 || r.DstChannel < 1 || r.DstChannel > 512 {
			return nil, &Error{ErrOutOfRange, fmt.Sprintf("universe %d: channel out of [1,512]: src=%d dst=%d",
				r.Universe, r.SrcChannel, r.DstChannel)}
		}
		byUniverse[r.Universe] = append(byUniverse[r.Universe], r)
	}

	for universe, rules := range byUniverse {
		if err := checkAcyclic(rules); err != nil {
			return nil, &Error{ErrCycle, fmt.Sprintf("universe %d: %s", universe, err)}
		}
	}

	return &Snapshot{byUniverse: byUniverse}, nil
}

// checkAcyclic runs a DFS over the src->dst edges of one universe's rules,
// rejecting any cycle. A channel may be both a source and a destination of
// distinct rules; only a cycle through those edges is an error.
func checkAcyclic(rules []Rule) error {
	edges := make(map[int][]int, len(rules))
	for _, r := range rules {
		edges[r.SrcChannel] = append(edges[r.SrcChannel], r.DstChannel)
	}

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[int]int, len(edges))

	var visit func(ch int) error
	visit = func(ch int) error {
		switch state[ch] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("cycle through channel %d", ch)
		}
		state[ch] = visiting
		for _, next := range edges[ch] {
			if err := visit(next); err != nil {
				return err
			}
		}
		state[ch] = done
		return nil
	}

	// Stable iteration order for deterministic error messages.
	for _, r := range rules {
		if err := visit(r.SrcChannel); err != nil {
			return err
		}
	}
	return nil
}

// Apply rewrites dst in place, applying this universe's rules in
// declaration order (§4.3 "application is a linear pass per universe").
// Call this only on a transient send-copy, never the authoritative buffer
// (§4.3: "the router never writes patched bytes into the authoritative
// buffer").
func (s *Snapshot) Apply(universe int, dmx *[512]byte) {
	if s == nil {
		return
	}
	for _, r := range s.byUniverse[universe] {
		dmx[r.DstChannel-1] = dmx[r.SrcChannel-1]
	}
}

// Empty returns a Snapshot with no rules, used before any patch is
// published.
func Empty() *Snapshot {
	return &Snapshot{byUniverse: make(map[int][]Rule)}
}
