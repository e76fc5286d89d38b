package ffi

import (
	"strings"
	"unsafe"

	"github.com/thesyncim/nativertc/internal/engine"
)

// peerConfigFFI matches NrtcPeerConfig in the engine header.
type peerConfigFFI struct {
	IceServers           *byte // encoded server block, see encodeIceServers
	IceTransportPolicy   int32
	BundlePolicy         int32
	IceCandidatePoolSize int32
	_                    [4]byte // padding
}

// videoFrameFFI matches NrtcVideoFrame in the engine header.
type videoFrameFFI struct {
	Width       int32
	Height      int32
	YPlane      uintptr
	UPlane      uintptr
	VPlane      uintptr
	YStride     int32
	UStride     int32
	VStride     int32
	_           [4]byte // padding
	TimestampUs int64
}

// audioFrameFFI matches NrtcAudioFrame in the engine header.
type audioFrameFFI struct {
	Samples     uintptr
	NumSamples  int32
	SampleRate  int32
	Channels    int32
	_           [4]byte // padding
	TimestampUs int64
}

// Ptr returns a pointer to the config as uintptr for FFI calls.
func (c *peerConfigFFI) Ptr() uintptr {
	return uintptr(unsafe.Pointer(c))
}

// Ptr returns a pointer to the frame as uintptr for FFI calls.
func (f *videoFrameFFI) Ptr() uintptr {
	return uintptr(unsafe.Pointer(f))
}

// Ptr returns a pointer to the frame as uintptr for FFI calls.
func (f *audioFrameFFI) Ptr() uintptr {
	return uintptr(unsafe.Pointer(f))
}

// encodeIceServers flattens the server list into the engine's text block
// format: one URL per line, with "username:" and "credential:" lines
// applying to the server block above them. Blank lines separate servers.
func encodeIceServers(servers []engine.IceServer) string {
	var b strings.Builder
	for i, s := range servers {
		if i > 0 {
			b.WriteByte('\n')
		}
		for _, u := range s.URLs {
			b.WriteString(u)
			b.WriteByte('\n')
		}
		if s.Username != "" {
			b.WriteString("username:")
			b.WriteString(s.Username)
			b.WriteByte('\n')
		}
		if s.Credential != "" {
			b.WriteString("credential:")
			b.WriteString(s.Credential)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func icePolicyCode(policy string) int32 {
	if policy == "relay" {
		return 1
	}
	return 0
}

func bundlePolicyCode(policy string) int32 {
	switch policy {
	case "max-compat":
		return 1
	case "max-bundle":
		return 2
	default:
		return 0
	}
}

// ByteSlicePtr returns a uintptr to the first element of a byte slice, or 0
// for an empty slice.
func ByteSlicePtr(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b[0]))
}

// Int16SlicePtr returns a uintptr to the first element of an int16 slice.
func Int16SlicePtr(s []int16) uintptr {
	if len(s) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&s[0]))
}

// UintptrPtr returns a uintptr to a uintptr variable.
func UintptrPtr(p *uintptr) uintptr {
	return uintptr(unsafe.Pointer(p))
}

// CString allocates a null-terminated C string from a Go string. The caller
// must keep the returned slice alive for as long as the engine reads it.
func CString(s string) []byte {
	b := make([]byte, len(s)+1)
	copy(b, s)
	b[len(s)] = 0
	return b
}

// CStringPtr returns a pointer to a null-terminated C string.
func CStringPtr(s string) *byte {
	b := CString(s)
	return &b[0]
}

// GoString copies a null-terminated C string into a Go string.
func GoString(ptr unsafe.Pointer) string {
	if ptr == nil {
		return ""
	}
	var n int
	for {
		if *(*byte)(unsafe.Add(ptr, n)) == 0 {
			break
		}
		n++
	}
	return string(unsafe.Slice((*byte)(ptr), n))
}

// goStringAt is GoString for a uintptr as received in callbacks.
//
//go:nocheckptr
func goStringAt(ptr uintptr) string {
	if ptr == 0 {
		return ""
	}
	return GoString(unsafe.Pointer(ptr))
}
