// Package sdputil rewrites session descriptions to steer codec selection
// before they are handed to the engine or the remote peer.
package sdputil

import (
	"fmt"
	"strings"

	"github.com/pion/sdp/v3"
)

// CodecPreference names the single codec to keep per media kind, with
// optional extra fmtp parameters appended to that codec's line. Empty
// fields leave the corresponding media sections untouched.
type CodecPreference struct {
	AudioCodec  string
	AudioParams string
	VideoCodec  string
	VideoParams string
}

// ForceCodecs narrows each audio/video media section to the preferred codec
// plus its retransmission (rtx) payloads. Sections whose kind has no
// preference, descriptions that fail to parse, and sections not offering
// the preferred codec at all are passed through unchanged.
func ForceCodecs(sdpText string, pref CodecPreference) string {
	if pref.AudioCodec == "" && pref.VideoCodec == "" {
		return sdpText
	}

	var desc sdp.SessionDescription
	if err := desc.Unmarshal([]byte(sdpText)); err != nil {
		return sdpText
	}

	changed := false
	for _, media := range desc.MediaDescriptions {
		var codec, params string
		switch media.MediaName.Media {
		case "audio":
			codec, params = pref.AudioCodec, pref.AudioParams
		case "video":
			codec, params = pref.VideoCodec, pref.VideoParams
		default:
			continue
		}
		if codec == "" {
			continue
		}
		if forceMediaCodec(media, codec, params) {
			changed = true
		}
	}
	if !changed {
		return sdpText
	}

	out, err := desc.Marshal()
	if err != nil {
		return sdpText
	}
	return string(out)
}

// forceMediaCodec rewrites one media section in place. It reports false
// when the preferred codec is absent, leaving the section untouched.
func forceMediaCodec(media *sdp.MediaDescription, codec, params string) bool {
	preferred := payloadTypesFor(media, codec)
	if len(preferred) == 0 {
		return false
	}
	rtx := rtxPayloadsFor(media, preferred)

	keep := make(map[string]bool, len(preferred)+len(rtx))
	var formats []string
	for _, pt := range preferred {
		keep[pt] = true
		formats = append(formats, pt)
	}
	for _, pt := range rtx {
		keep[pt] = true
		formats = append(formats, pt)
	}
	media.MediaName.Formats = formats

	var attrs []sdp.Attribute
	fmtpSeen := make(map[string]bool)
	for _, a := range media.Attributes {
		switch a.Key {
		case "rtpmap", "fmtp", "rtcp-fb":
			pt := attrPayloadType(a.Value)
			if !keep[pt] {
				continue
			}
			if a.Key == "fmtp" && params != "" && isPreferred(preferred, pt) {
				a.Value = a.Value + ";" + params
				fmtpSeen[pt] = true
			}
		}
		attrs = append(attrs, a)
	}

	// Preferred payloads with no fmtp line yet get one for the extras.
	if params != "" {
		for _, pt := range preferred {
			if !fmtpSeen[pt] {
				attrs = append(attrs, sdp.Attribute{
					Key:   "fmtp",
					Value: fmt.Sprintf("%s %s", pt, params),
				})
			}
		}
	}

	media.Attributes = attrs
	return true
}

// payloadTypesFor returns the payload types whose rtpmap names the codec.
func payloadTypesFor(media *sdp.MediaDescription, codec string) []string {
	var out []string
	for _, a := range media.Attributes {
		if a.Key != "rtpmap" {
			continue
		}
		pt, name, ok := splitRtpmap(a.Value)
		if ok && strings.EqualFold(name, codec) {
			out = append(out, pt)
		}
	}
	return out
}

// rtxPayloadsFor returns the rtx payload types whose fmtp apt refers to one
// of the kept payloads.
func rtxPayloadsFor(media *sdp.MediaDescription, kept []string) []string {
	rtxPts := make(map[string]bool)
	for _, a := range media.Attributes {
		if a.Key != "rtpmap" {
			continue
		}
		if pt, name, ok := splitRtpmap(a.Value); ok && strings.EqualFold(name, "rtx") {
			rtxPts[pt] = true
		}
	}

	var out []string
	for _, a := range media.Attributes {
		if a.Key != "fmtp" {
			continue
		}
		pt := attrPayloadType(a.Value)
		if !rtxPts[pt] {
			continue
		}
		for _, target := range kept {
			if strings.Contains(a.Value, "apt="+target) {
				out = append(out, pt)
				break
			}
		}
	}
	return out
}

// splitRtpmap parses "96 VP8/90000" into ("96", "VP8").
func splitRtpmap(value string) (pt, codec string, ok bool) {
	fields := strings.Fields(value)
	if len(fields) < 2 {
		return "", "", false
	}
	name, _, _ := strings.Cut(fields[1], "/")
	return fields[0], name, true
}

// attrPayloadType returns the leading payload type of an attribute value
// like "96 apt=95" or "96 goog-remb".
func attrPayloadType(value string) string {
	pt, _, _ := strings.Cut(value, " ")
	return pt
}

func isPreferred(preferred []string, pt string) bool {
	for _, p := range preferred {
		if p == pt {
			return true
		}
	}
	return false
}
