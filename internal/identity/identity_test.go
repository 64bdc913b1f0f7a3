package identity

import (
	"strings"
	"testing"
)

func TestNewUniqueIDIsStableShapeAndUnique(t *testing.T) {
	a := NewUniqueID("my-host")
	b := NewUniqueID("my-host")
	if a == b {
		t.Error("two calls should not produce the same unique_id")
	}
	if !strings.HasPrefix(a, "my-host_") {
		t.Errorf("unique_id %q should start with hostname_", a)
	}
}

func TestDefaultCapabilities(t *testing.T) {
	caps := DefaultCapabilities()
	if len(caps.VideoCodecs) != 3 || caps.VideoCodecs[0] != "H264" {
		t.Errorf("unexpected default video codecs: %v", caps.VideoCodecs)
	}
	if len(caps.AudioCodecs) != 1 || caps.AudioCodecs[0] != "opus" {
		t.Errorf("unexpected default audio codecs: %v", caps.AudioCodecs)
	}
}

func TestHostRegisterMessage(t *testing.T) {
	h := Host{Hostname: "h", UniqueID: "h_1", AuthKey: "k", Capabilities: DefaultCapabilities()}
	reg := h.Register()
	if reg.Type != "register" || reg.Hostname != "h" || reg.UniqueID != "h_1" {
		t.Errorf("unexpected register message: %+v", reg)
	}
}
