package xfer

import (
	"bytes"
	"strconv"
)

// appendFileInfo appends the file metadata record shared by YMODEM block 0
// and the ZMODEM ZFILE subpacket: the file name, a NUL, the decimal file
// size, and a NUL.
func appendFileInfo(dst []byte, name string, size uint64) []byte {
	dst = append(dst, name...)
	dst = append(dst, 0)
	dst = strconv.AppendUint(dst, size, 10)
	dst = append(dst, 0)
	return dst
}

// parseFileInfo decodes a file metadata record: the name runs to the first
// NUL, the decimal size to the next NUL or whitespace. A missing or
// malformed size yields 0 (unknown).
func parseFileInfo(p []byte) (name string, size uint64) {
	end := bytes.IndexByte(p, 0)
	if end < 0 {
		return string(p), 0
	}
	name = string(p[:end])

	rest := p[end+1:]
	stop := len(rest)
	for i, b := range rest {
		if b == 0 || b == ' ' || b == '\t' {
			stop = i
			break
		}
	}
	size, _ = strconv.ParseUint(string(rest[:stop]), 10, 64)
	return name, size
}

// validFileName reports whether name fits the protocol metadata record:
// at most MaxFileName bytes of 7-bit ASCII with no embedded NUL.
func validFileName(name string) bool {
	if len(name) > MaxFileName {
		return false
	}
	for i := 0; i < len(name); i++ {
		if name[i] == 0 || name[i] > 0x7F {
			return false
		}
	}
	return true
}
