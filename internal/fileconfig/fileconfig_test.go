package fileconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMappingJSONDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mapping.json")
	if err := os.WriteFile(path, []byte(`[
		{"from":1,"to":4,"controller_ip":"10.0.0.1","universe":0}
	]`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	snap, err := LoadMapping(path)
	if err != nil {
		t.Fatalf("LoadMapping: %v", err)
	}
	key, offset, layout, ok := snap.Resolve(2)
	if !ok {
		t.Fatal("expected entity 2 to resolve")
	}
	if key.ControllerIP != "10.0.0.1" || key.Universe != 0 {
		t.Errorf("unexpected key %+v", key)
	}
	if offset != 3 {
		t.Errorf("offset = %d, want 3 (default channel_start=1, 3 channels per entity)", offset)
	}
	if len(layout) != 3 {
		t.Errorf("layout length = %d, want 3 (default RGB)", len(layout))
	}
}

func TestLoadMappingYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mapping.yaml")
	content := "- from: 1\n  to: 1\n  controller_ip: 10.0.0.2\n  universe: 1\n  channel_start: 5\n  channels: [R, G, B, W]\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	snap, err := LoadMapping(path)
	if err != nil {
		t.Fatalf("LoadMapping: %v", err)
	}
	_, offset, layout, ok := snap.Resolve(1)
	if !ok {
		t.Fatal("expected entity 1 to resolve")
	}
	if offset != 4 {
		t.Errorf("offset = %d, want 4 (channel_start=5 is 1-indexed)", offset)
	}
	if len(layout) != 4 {
		t.Errorf("layout length = %d, want 4 (RGBW)", len(layout))
	}
}

func TestLoadPatchJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patch.json")
	if err := os.WriteFile(path, []byte(`{
		"enabled": true,
		"rules": [{"universe":0,"src_channel":1,"dst_channel":4}]
	}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	snap, enabled, err := LoadPatch(path)
	if err != nil {
		t.Fatalf("LoadPatch: %v", err)
	}
	if !enabled {
		t.Error("expected enabled=true")
	}
	dmx := [512]byte{}
	dmx[0] = 42
	snap.Apply(0, &dmx)
	if dmx[3] != 42 {
		t.Errorf("dmx[3] = %d, want 42 after patch rewrite", dmx[3])
	}
}

func TestLoadPatchRejectsCycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patch.json")
	if err := os.WriteFile(path, []byte(`{
		"enabled": false,
		"rules": [{"universe":0,"src_channel":1,"dst_channel":2},{"universe":0,"src_channel":2,"dst_channel":1}]
	}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, _, err := LoadPatch(path); err == nil {
		t.Fatal("expected a cycle to be rejected")
	}
}
