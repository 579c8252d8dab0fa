package interceptor

import "time"

// ntpEpochOffset is the number of seconds between the NTP epoch (1900) and
// the Unix epoch (1970).
const ntpEpochOffset = 2_208_988_800

// compactNTP returns the middle 32 bits of the 64-bit NTP timestamp for t:
// 16 bits of seconds and 16 bits of fraction. This is the format of the LSR
// and DLSR fields of RTCP reception reports.
func compactNTP(t time.Time) uint32 {
	secs := uint64(t.Unix()) + ntpEpochOffset
	frac := uint64(t.Nanosecond()) << 32 / uint64(time.Second)
	return uint32(secs&0xFFFF)<<16 | uint32(frac>>16)
}

// roundTripTime computes RTT from a reception report received at arrival:
// RTT = A - LSR - DLSR, all in 1/65536 s units and modulo 2^32. It reports
// false when the report carries no LSR or the result is negative (the
// difference wrapped past half the range).
func roundTripTime(arrival time.Time, lsr, dlsr uint32) (time.Duration, bool) {
	if lsr == 0 {
		return 0, false
	}
	diff := compactNTP(arrival) - lsr - dlsr
	if diff >= 1<<31 {
		return 0, false
	}
	return time.Duration(int64(diff) * int64(time.Second) >> 16), true
}
