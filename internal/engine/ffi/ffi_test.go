package ffi

import (
	"testing"
	"unsafe"

	"github.com/thesyncim/nativertc/internal/engine"
)

func TestCStringRoundTrip(t *testing.T) {
	tests := []string{"", "a", "v=0\r\no=- 0 0 IN IP4 127.0.0.1", "stun:stun.l.google.com:19302"}

	for _, s := range tests {
		b := CString(s)
		if len(b) != len(s)+1 {
			t.Errorf("CString(%q) len = %d, want %d", s, len(b), len(s)+1)
		}
		if b[len(s)] != 0 {
			t.Errorf("CString(%q) missing terminator", s)
		}
		if got := GoString(unsafe.Pointer(&b[0])); got != s {
			t.Errorf("GoString(CString(%q)) = %q", s, got)
		}
	}
}

func TestGoStringNil(t *testing.T) {
	if got := GoString(nil); got != "" {
		t.Errorf("GoString(nil) = %q, want empty", got)
	}
	if got := goStringAt(0); got != "" {
		t.Errorf("goStringAt(0) = %q, want empty", got)
	}
}

func TestEncodeIceServers(t *testing.T) {
	tests := []struct {
		name    string
		servers []engine.IceServer
		want    string
	}{
		{"empty", nil, ""},
		{
			"single stun",
			[]engine.IceServer{{URLs: []string{"stun:stun.example.org:3478"}}},
			"stun:stun.example.org:3478\n",
		},
		{
			"turn with credentials",
			[]engine.IceServer{{
				URLs:       []string{"turn:turn.example.org:3478"},
				Username:   "alice",
				Credential: "secret",
			}},
			"turn:turn.example.org:3478\nusername:alice\ncredential:secret\n",
		},
		{
			"two servers",
			[]engine.IceServer{
				{URLs: []string{"stun:a.example.org"}},
				{URLs: []string{"turn:b.example.org"}, Username: "u", Credential: "p"},
			},
			"stun:a.example.org\n\nturn:b.example.org\nusername:u\ncredential:p\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := encodeIceServers(tt.servers); got != tt.want {
				t.Errorf("encodeIceServers() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPolicyCodes(t *testing.T) {
	if icePolicyCode("all") != 0 || icePolicyCode("") != 0 {
		t.Error("default ICE policy should map to 0")
	}
	if icePolicyCode("relay") != 1 {
		t.Error("relay ICE policy should map to 1")
	}
	if bundlePolicyCode("balanced") != 0 || bundlePolicyCode("") != 0 {
		t.Error("default bundle policy should map to 0")
	}
	if bundlePolicyCode("max-compat") != 1 || bundlePolicyCode("max-bundle") != 2 {
		t.Error("bundle policy codes wrong")
	}
}

func TestGetLibraryNameFor(t *testing.T) {
	tests := []struct {
		goos string
		want string
	}{
		{"linux", "libnativertc_engine.so"},
		{"darwin", "libnativertc_engine.dylib"},
		{"windows", "nativertc_engine.dll"},
		{"freebsd", "libnativertc_engine.so"},
	}

	for _, tt := range tests {
		if got := getLibraryNameFor(tt.goos); got != tt.want {
			t.Errorf("getLibraryNameFor(%q) = %q, want %q", tt.goos, got, tt.want)
		}
	}
}

func TestStructSizes(t *testing.T) {
	// The engine header lays these out with 8-byte alignment; a drifted
	// size here means the padding fields no longer match.
	if got := unsafe.Sizeof(videoFrameFFI{}); got != 56 {
		t.Errorf("videoFrameFFI size = %d, want 56", got)
	}
	if got := unsafe.Sizeof(audioFrameFFI{}); got != 32 {
		t.Errorf("audioFrameFFI size = %d, want 32", got)
	}
	if got := unsafe.Sizeof(peerConfigFFI{}); got != 24 {
		t.Errorf("peerConfigFFI size = %d, want 24", got)
	}
}

func TestEngineCallsFailWhenNotLoaded(t *testing.T) {
	if IsLoaded() {
		t.Skip("engine library loaded in this environment")
	}

	e := &Engine{}
	if _, err := e.CreatePeerConnection(nil); err != ErrLibraryNotLoaded {
		t.Errorf("CreatePeerConnection error = %v, want ErrLibraryNotLoaded", err)
	}
	if err := e.CreateOffer(1); err != ErrLibraryNotLoaded {
		t.Errorf("CreateOffer error = %v, want ErrLibraryNotLoaded", err)
	}
	if err := e.DataChannelSend(1, []byte("x"), true); err != ErrLibraryNotLoaded {
		t.Errorf("DataChannelSend error = %v, want ErrLibraryNotLoaded", err)
	}
	if v := EngineVersion(); v != "" {
		t.Errorf("EngineVersion = %q, want empty when not loaded", v)
	}
}
