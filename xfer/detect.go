package xfer

import "bytes"

// rzTrigger is the command line a ZMODEM sender types to start the remote
// receiver.
var rzTrigger = []byte("rz\r")

// zmodemLead is the start of a ZMODEM hex frame: two pads, ZDLE, ZHEX.
var zmodemLead = []byte{ZPAD, ZPAD, ZDLE, ZHEX}

// DetectZModemAutostart reports whether buf contains a ZMODEM sender's
// auto-start signature: the "rz" command followed by CR, or the lead-in of
// a hex frame. A true result is the host's cue to create a ZModem receive
// session and replay the triggering bytes into it.
func DetectZModemAutostart(buf []byte) bool {
	if len(buf) == 0 {
		return false
	}
	return bytes.Contains(buf, rzTrigger) || bytes.Contains(buf, zmodemLead)
}
