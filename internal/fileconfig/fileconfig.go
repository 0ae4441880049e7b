// Package fileconfig loads mapping and patch configuration files for
// cmd/router (§6 "Mapping configuration", "Patch configuration"). JSON is
// the default format; a ".yaml"/".yml" extension switches to YAML.
package fileconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dridi14/p1-router/internal/color"
	"github.com/dridi14/p1-router/internal/mapping"
	"github.com/dridi14/p1-router/internal/patch"
)

// rawRange mirrors a MappingRange's source encoding, with optional fields
// given their §6 defaults after unmarshaling.
type rawRange struct {
	From         int      `json:"from" yaml:"from"`
	To           int      `json:"to" yaml:"to"`
	ControllerIP string   `json:"controller_ip" yaml:"controller_ip"`
	Universe     int      `json:"universe" yaml:"universe"`
	ChannelStart int      `json:"channel_start" yaml:"channel_start"`
	Channels     []string `json:"channels" yaml:"channels"`
}

type rawPatch struct {
	Enabled bool      `json:"enabled" yaml:"enabled"`
	Rules   []rawRule `json:"rules" yaml:"rules"`
}

type rawRule struct {
	Universe   int `json:"universe" yaml:"universe"`
	SrcChannel int `json:"src_channel" yaml:"src_channel"`
	DstChannel int `json:"dst_channel" yaml:"dst_channel"`
}

// LoadMapping reads and validates a mapping configuration file.
func LoadMapping(path string) (*mapping.Snapshot, error) {
	var raws []rawRange
	if err := unmarshalFile(path, &raws); err != nil {
		return nil, fmt.Errorf("fileconfig: load mapping: %w", err)
	}

	ranges := make([]mapping.Range, len(raws))
	for i, raw := range raws {
		channelStart := raw.ChannelStart
		if channelStart == 0 {
			channelStart = 1
		}
		var channels []color.Channel
		if len(raw.Channels) == 0 {
			channels = color.DefaultLayout
		} else {
			channels = make([]color.Channel, len(raw.Channels))
			for j, letter := range raw.Channels {
				ch, err := color.ParseChannel(letter)
				if err != nil {
					return nil, fmt.Errorf("fileconfig: mapping range %d: %w", i, err)
				}
				channels[j] = ch
			}
		}
		ranges[i] = mapping.Range{
			From:         raw.From,
			To:           raw.To,
			ControllerIP: raw.ControllerIP,
			Universe:     raw.Universe,
			ChannelStart: channelStart,
			Channels:     channels,
		}
	}

	return mapping.Validate(ranges)
}

// LoadPatch reads and validates a patch configuration file, returning the
// rule snapshot and the configured enabled flag.
func LoadPatch(path string) (*patch.Snapshot, bool, error) {
	var raw rawPatch
	if err := unmarshalFile(path, &raw); err != nil {
		return nil, false, fmt.Errorf("fileconfig: load patch: %w", err)
	}

	rules := make([]patch.Rule, len(raw.Rules))
	for i, r := range raw.Rules {
		rules[i] = patch.Rule{Universe: r.Universe, SrcChannel: r.SrcChannel, DstChannel: r.DstChannel}
	}

	snap, err := patch.Validate(rules)
	if err != nil {
		return nil, false, err
	}
	return snap, raw.Enabled, nil
}

// unmarshalFile reads path and decodes it into v, choosing YAML for a
// ".yaml"/".yml" extension and JSON otherwise.
func unmarshalFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, v)
	default:
		return json.Unmarshal(data, v)
	}
}
