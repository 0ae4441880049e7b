// Package wire decodes inbound eHuB UDP datagrams (§4.1, §6). The decoder
// is stateless and safe for concurrent use by multiple receiver goroutines.
package wire

import (
	"fmt"

	"github.com/buger/jsonparser"

	"github.com/dridi14/p1-router/internal/color"
)

// MaxDatagramSize is the largest eHuB datagram the decoder will touch;
// anything larger is rejected before any per-entity allocation happens
// (§4.1: "Oversized datagrams (> 64 KiB) are rejected without allocation
// of per-entity records").
const MaxDatagramSize = 64 * 1024

// Kind distinguishes the two eHuB message shapes (§4.1).
type Kind int

const (
	KindUpdate Kind = iota
	KindConfig
)

// EntityUpdate is one decoded `update` entry: an id and its new color.
type EntityUpdate struct {
	ID    int
	Color color.Sample
}

// EntityConfig is one decoded `config` entry. Routing never consults this;
// it exists purely to be forwarded to observers (§4.1).
type EntityConfig struct {
	ID    int
	Label string
	Group string
}

// Message is a fully decoded eHuB datagram.
type Message struct {
	Kind     Kind
	Universe int  // only meaningful when HasUniverse is true
	HasUniverse bool
	Updates  []EntityUpdate
	Configs  []EntityConfig
}

// MalformedError is returned for any datagram the decoder refuses to
// route. It never crashes the caller (§4.1: "Malformed input MUST NOT
// crash the router; it is counted and surfaced as an observer event").
type MalformedError struct {
	Reason string
}

func (e *MalformedError) Error() string { return "wire: malformed datagram: " + e.Reason }

// Decode parses one UDP datagram into a Message, or returns a
// *MalformedError. Oversized, empty, or untyped input is rejected before any
// per-entity allocation; when a later entity in an otherwise valid array is
// broken, the entities before it have already been decoded.
func Decode(data []byte) (*Message, error) {
	if len(data) > MaxDatagramSize {
		return nil, &MalformedError{Reason: fmt.Sprintf("datagram too large: %d bytes", len(data))}
	}
	if len(data) == 0 {
		return nil, &MalformedError{Reason: "empty datagram"}
	}

	typeVal, err := jsonparser.GetString(data, "type")
	if err != nil {
		return nil, &MalformedError{Reason: "missing or invalid \"type\""}
	}

	msg := &Message{}
	switch typeVal {
	case "update":
		msg.Kind = KindUpdate
	case "config":
		msg.Kind = KindConfig
	default:
		return nil, &MalformedError{Reason: fmt.Sprintf("unknown type %q", typeVal)}
	}

	if uniVal, err := jsonparser.GetInt(data, "universe"); err == nil {
		msg.Universe = int(uniVal)
		msg.HasUniverse = true
	}

	var decodeErr error
	switch msg.Kind {
	case KindUpdate:
		_, err = jsonparser.ArrayEach(data, func(value []byte, dataType jsonparser.ValueType, _ int, _ error) {
			if decodeErr != nil || dataType != jsonparser.Object {
				return
			}
			u, uErr := parseEntityUpdate(value)
			if uErr != nil {
				decodeErr = uErr
				return
			}
			msg.Updates = append(msg.Updates, u)
		}, "entities")
	case KindConfig:
		_, err = jsonparser.ArrayEach(data, func(value []byte, dataType jsonparser.ValueType, _ int, _ error) {
			if decodeErr != nil || dataType != jsonparser.Object {
				return
			}
			c, cErr := parseEntityConfig(value)
			if cErr != nil {
				decodeErr = cErr
				return
			}
			msg.Configs = append(msg.Configs, c)
		}, "entities")
	}
	if err != nil && err != jsonparser.KeyPathNotFoundError {
		return nil, &MalformedError{Reason: "malformed \"entities\" array"}
	}
	if decodeErr != nil {
		return nil, decodeErr
	}

	return msg, nil
}

func parseEntityUpdate(obj []byte) (EntityUpdate, error) {
	id, err := jsonparser.GetInt(obj, "id")
	if err != nil {
		return EntityUpdate{}, &MalformedError{Reason: "entity missing \"id\""}
	}

	var sample color.Sample
	colorVal, _, _, cErr := jsonparser.Get(obj, "color")
	if cErr == nil {
		r, _ := jsonparser.GetInt(colorVal, "r")
		g, _ := jsonparser.GetInt(colorVal, "g")
		b, _ := jsonparser.GetInt(colorVal, "b")
		w, _ := jsonparser.GetInt(colorVal, "w") // optional, defaults to 0 (§4.1)
		sample = color.Sample{R: uint8(r), G: uint8(g), B: uint8(b), W: uint8(w)}
	}

	return EntityUpdate{ID: int(id), Color: sample}, nil
}

func parseEntityConfig(obj []byte) (EntityConfig, error) {
	id, err := jsonparser.GetInt(obj, "id")
	if err != nil {
		return EntityConfig{}, &MalformedError{Reason: "entity missing \"id\""}
	}
	label, _ := jsonparser.GetString(obj, "label")
	group, _ := jsonparser.GetString(obj, "group")
	return EntityConfig{ID: int(id), Label: label, Group: group}, nil
}
