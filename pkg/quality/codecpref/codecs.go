package codecpref

import (
	"strconv"
	"strings"

	"github.com/pion/sdp/v3"
)

// ParseCodecs returns the codecs of a media section in format order, built
// from its rtpmap, fmtp and rtcp-fb attributes. Payload types without an
// rtpmap line are returned with an empty name.
func ParseCodecs(media *sdp.MediaDescription) []sdp.Codec {
	byPT := make(map[uint8]*sdp.Codec)
	order := make([]uint8, 0, len(media.MediaName.Formats))
	for _, f := range media.MediaName.Formats {
		pt, err := strconv.ParseUint(f, 10, 8)
		if err != nil {
			continue
		}
		if _, dup := byPT[uint8(pt)]; dup {
			continue
		}
		byPT[uint8(pt)] = &sdp.Codec{PayloadType: uint8(pt)}
		order = append(order, uint8(pt))
	}

	for _, a := range media.Attributes {
		pt, ok := attributePayloadType(a)
		if !ok {
			continue
		}
		c, known := byPT[pt]
		if !known {
			continue
		}
		rest := attributeRest(a.Value)
		switch a.Key {
		case attrRtpmap:
			parseRtpmap(c, rest)
		case attrFmtp:
			c.Fmtp = rest
		case attrRtcpFb:
			c.RTCPFeedback = append(c.RTCPFeedback, rest)
		}
	}

	codecs := make([]sdp.Codec, 0, len(order))
	for _, pt := range order {
		codecs = append(codecs, *byPT[pt])
	}
	return codecs
}

// IsBaselineProfile reports whether an H.264 fmtp line advertises a baseline
// profile (profile_idc 0x42), including constrained baseline.
func IsBaselineProfile(fmtp string) bool {
	id, ok := fmtpParam(fmtp, fmtpProfileLevelID)
	if !ok || len(id) != 6 {
		return false
	}
	return strings.EqualFold(id[:2], "42")
}

// parseRtpmap fills name, clock rate and channels from "H264/90000" or
// "opus/48000/2".
func parseRtpmap(c *sdp.Codec, value string) {
	parts := strings.Split(value, "/")
	c.Name = parts[0]
	if len(parts) > 1 {
		if rate, err := strconv.ParseUint(parts[1], 10, 32); err == nil {
			c.ClockRate = uint32(rate)
		}
	}
	if len(parts) > 2 {
		c.EncodingParameters = parts[2]
	}
}

// attributePayloadType returns the leading payload type of an rtpmap, fmtp
// or rtcp-fb attribute. Wildcard rtcp-fb lines ("* nack") have none.
func attributePayloadType(a sdp.Attribute) (uint8, bool) {
	if a.Key != attrRtpmap && a.Key != attrFmtp && a.Key != attrRtcpFb {
		return 0, false
	}
	field := a.Value
	if i := strings.IndexByte(field, ' '); i >= 0 {
		field = field[:i]
	}
	pt, err := strconv.ParseUint(field, 10, 8)
	if err != nil {
		return 0, false
	}
	return uint8(pt), true
}

func attributeRest(value string) string {
	if i := strings.IndexByte(value, ' '); i >= 0 {
		return strings.TrimSpace(value[i+1:])
	}
	return ""
}

// fmtpParam looks up key in a "k1=v1;k2=v2" parameter list.
func fmtpParam(params, key string) (string, bool) {
	for _, kv := range strings.Split(params, ";") {
		k, v, found := strings.Cut(strings.TrimSpace(kv), "=")
		if found && strings.EqualFold(k, key) {
			return v, true
		}
	}
	return "", false
}

// setFmtpParam replaces key's value, appending it when absent. Other
// parameters keep their order.
func setFmtpParam(params, key, value string) string {
	var out []string
	replaced := false
	for _, kv := range strings.Split(params, ";") {
		kv = strings.TrimSpace(kv)
		if kv == "" {
			continue
		}
		if k, _, found := strings.Cut(kv, "="); found && strings.EqualFold(k, key) {
			if replaced {
				continue
			}
			kv = key + "=" + value
			replaced = true
		}
		out = append(out, kv)
	}
	if !replaced {
		out = append(out, key+"="+value)
	}
	return strings.Join(out, ";")
}
