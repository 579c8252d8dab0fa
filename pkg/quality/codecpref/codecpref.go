// Package codecpref rewrites session descriptions so that negotiation lands
// on the codec configuration the quality engine can steer: baseline H.264 for
// video, Opus for audio, no forward error correction, and a bounded video
// bandwidth.
//
// The transform is idempotent: applying it to its own output changes nothing.
package codecpref

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"
)

const (
	// DefaultMaxVideoBitrate is the video bandwidth advertised when a video
	// section carries no bandwidth line, in bits per second.
	DefaultMaxVideoBitrate = 1_000_000

	// BaselineProfileLevelID is constrained baseline, level 3.1.
	BaselineProfileLevelID = "42e01f"

	bandwidthAS   = "AS"
	bandwidthTIAS = "TIAS"

	attrRtpmap = "rtpmap"
	attrFmtp   = "fmtp"
	attrRtcpFb = "rtcp-fb"

	fmtpProfileLevelID = "profile-level-id"
	fmtpApt            = "apt"
)

// ErrInvalidSDP is returned when the input cannot be parsed.
var ErrInvalidSDP = errors.New("codecpref: invalid session description")

// fecCodecs are the redundancy and FEC encodings removed from every section.
var fecCodecs = map[string]struct{}{
	"red":                                {},
	mimeSubtype(webrtc.MimeTypeUlpFEC):    {},
	mimeSubtype(webrtc.MimeTypeFlexFEC):   {},
	mimeSubtype(webrtc.MimeTypeFlexFEC03): {},
}

var (
	codecH264 = mimeSubtype(webrtc.MimeTypeH264)
	codecOpus = mimeSubtype(webrtc.MimeTypeOpus)
	codecRTX  = mimeSubtype(webrtc.MimeTypeRTX)
)

// Options configures the transform.
type Options struct {
	// MaxVideoBitrate is written as b=AS (in kbps) on video sections that
	// have neither an AS nor a TIAS line. Default: 1,000,000
	MaxVideoBitrate int64

	// ProfileLevelID is the H.264 profile-level-id written when no baseline
	// variant is offered. Default: "42e01f"
	ProfileLevelID string
}

// DefaultOptions returns the default transform options.
func DefaultOptions() Options {
	return Options{
		MaxVideoBitrate: DefaultMaxVideoBitrate,
		ProfileLevelID:  BaselineProfileLevelID,
	}
}

func (o Options) withDefaults() Options {
	if o.MaxVideoBitrate <= 0 {
		o.MaxVideoBitrate = DefaultMaxVideoBitrate
	}
	if o.ProfileLevelID == "" {
		o.ProfileLevelID = BaselineProfileLevelID
	}
	return o
}

// Transform returns a rewritten copy of desc. The input is not modified.
func Transform(desc *sdp.SessionDescription, opts Options) (*sdp.SessionDescription, error) {
	if desc == nil {
		return nil, fmt.Errorf("%w: nil description", ErrInvalidSDP)
	}
	opts = opts.withDefaults()

	out, err := clone(desc)
	if err != nil {
		return nil, err
	}

	for _, media := range out.MediaDescriptions {
		removeFEC(media)
		switch media.MediaName.Media {
		case "video":
			preferBaselineH264(media, opts.ProfileLevelID)
			ensureBandwidth(media, opts.MaxVideoBitrate)
		case "audio":
			preferCodec(media, codecOpus)
		}
	}
	return out, nil
}

// TransformSDP parses raw, transforms it, and marshals the result.
func TransformSDP(raw string, opts Options) (string, error) {
	parsed := &sdp.SessionDescription{}
	if err := parsed.UnmarshalString(raw); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSDP, err)
	}
	out, err := Transform(parsed, opts)
	if err != nil {
		return "", err
	}
	b, err := out.Marshal()
	if err != nil {
		return "", fmt.Errorf("codecpref: marshal: %w", err)
	}
	return string(b), nil
}

// TransformSessionDescription applies the transform to an offer or answer,
// keeping its type.
func TransformSessionDescription(desc webrtc.SessionDescription, opts Options) (webrtc.SessionDescription, error) {
	munged, err := TransformSDP(desc.SDP, opts)
	if err != nil {
		return desc, err
	}
	return webrtc.SessionDescription{
		Type: desc.Type,
		SDP:  munged,
	}, nil
}

func clone(desc *sdp.SessionDescription) (*sdp.SessionDescription, error) {
	b, err := desc.Marshal()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSDP, err)
	}
	out := &sdp.SessionDescription{}
	if err := out.Unmarshal(b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSDP, err)
	}
	return out, nil
}

// removeFEC drops FEC/RED payloads, and RTX payloads protecting them, along
// with all of their attributes.
func removeFEC(media *sdp.MediaDescription) {
	codecs := ParseCodecs(media)

	removed := make(map[uint8]struct{})
	for _, c := range codecs {
		if _, ok := fecCodecs[strings.ToLower(c.Name)]; ok {
			removed[c.PayloadType] = struct{}{}
		}
	}
	if len(removed) == 0 {
		return
	}
	for _, c := range codecs {
		if !strings.EqualFold(c.Name, codecRTX) {
			continue
		}
		if apt, ok := fmtpParam(c.Fmtp, fmtpApt); ok {
			if pt, err := strconv.ParseUint(apt, 10, 8); err == nil {
				if _, gone := removed[uint8(pt)]; gone {
					removed[c.PayloadType] = struct{}{}
				}
			}
		}
	}

	formats := media.MediaName.Formats[:0]
	for _, f := range media.MediaName.Formats {
		if pt, err := strconv.ParseUint(f, 10, 8); err == nil {
			if _, gone := removed[uint8(pt)]; gone {
				continue
			}
		}
		formats = append(formats, f)
	}
	media.MediaName.Formats = formats

	attrs := media.Attributes[:0]
	for _, a := range media.Attributes {
		if pt, ok := attributePayloadType(a); ok {
			if _, gone := removed[pt]; gone {
				continue
			}
		}
		attrs = append(attrs, a)
	}
	media.Attributes = attrs
}

// preferBaselineH264 moves a baseline H.264 payload to the front of the
// format list. When none is offered, the first H.264 payload is rewritten to
// the baseline profile and moved instead.
func preferBaselineH264(media *sdp.MediaDescription, profileLevelID string) {
	var first *sdp.Codec
	for _, c := range ParseCodecs(media) {
		if !strings.EqualFold(c.Name, codecH264) {
			continue
		}
		if IsBaselineProfile(c.Fmtp) {
			moveToFront(media, c.PayloadType)
			return
		}
		if first == nil {
			first = &c
		}
	}
	if first == nil {
		return
	}
	setProfileLevelID(media, first.PayloadType, profileLevelID)
	moveToFront(media, first.PayloadType)
}

// preferCodec moves every payload of the named codec to the front of the
// format list, keeping their relative order.
func preferCodec(media *sdp.MediaDescription, name string) {
	var preferred []uint8
	for _, c := range ParseCodecs(media) {
		if strings.EqualFold(c.Name, name) {
			preferred = append(preferred, c.PayloadType)
		}
	}
	for i := len(preferred) - 1; i >= 0; i-- {
		moveToFront(media, preferred[i])
	}
}

func moveToFront(media *sdp.MediaDescription, pt uint8) {
	want := strconv.Itoa(int(pt))
	formats := media.MediaName.Formats
	for i, f := range formats {
		if f != want {
			continue
		}
		copy(formats[1:i+1], formats[:i])
		formats[0] = want
		return
	}
}

func setProfileLevelID(media *sdp.MediaDescription, pt uint8, profileLevelID string) {
	prefix := strconv.Itoa(int(pt)) + " "
	for i, a := range media.Attributes {
		if a.Key != attrFmtp || !strings.HasPrefix(a.Value, prefix) {
			continue
		}
		params := strings.TrimPrefix(a.Value, prefix)
		media.Attributes[i].Value = prefix + setFmtpParam(params, fmtpProfileLevelID, profileLevelID)
		return
	}
	media.Attributes = append(media.Attributes, sdp.Attribute{
		Key:   attrFmtp,
		Value: fmt.Sprintf("%slevel-asymmetry-allowed=1;packetization-mode=1;%s=%s", prefix, fmtpProfileLevelID, profileLevelID),
	})
}

func ensureBandwidth(media *sdp.MediaDescription, maxBitrate int64) {
	for _, b := range media.Bandwidth {
		if strings.EqualFold(b.Type, bandwidthAS) || strings.EqualFold(b.Type, bandwidthTIAS) {
			return
		}
	}
	media.Bandwidth = append(media.Bandwidth, sdp.Bandwidth{
		Type:      bandwidthAS,
		Bandwidth: uint64(maxBitrate / 1000),
	})
}

func mimeSubtype(mime string) string {
	if i := strings.IndexByte(mime, '/'); i >= 0 {
		return mime[i+1:]
	}
	return mime
}
