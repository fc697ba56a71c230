package discover

import "time"

// counterWrap is the modulus of the 32-bit sysUpTime counter.
const counterWrap = int64(1) << 32

// ticksPerSecond converts timeticks (10ms units) to seconds.
const ticksPerSecond = 100

// CorrectLastChange adjusts an interface last-change reading across a
// 32-bit uptime counter wrap. A wrap is apparent when the new raw
// uptime is smaller than the previous reading. Readings recorded after
// the previous poll, or within the window after the wrap, move forward
// by 2^32 so they stay comparable with pre-wrap history. The window is
// a best-effort guess; outside it no adjustment occurs.
func CorrectLastChange(prevUptime, rawUptime uint32, lastChange int64, window time.Duration) int64 {
	if rawUptime >= prevUptime {
		return lastChange
	}

	windowTicks := int64(window/time.Second) * ticksPerSecond
	if lastChange > int64(prevUptime) || lastChange <= windowTicks {
		return lastChange + counterWrap
	}
	return lastChange
}
