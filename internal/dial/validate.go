package dial

import "strconv"

// Protocol limits from DIAL 1.6.1.
const (
	// maxStartPayload is the maximum start payload size in bytes.
	maxStartPayload = 4096

	// maxAdditionalDataURL is the maximum additionalDataURL length.
	maxAdditionalDataURL = 1024

	// maxDialDataPayload is the maximum dial-data payload size in bytes.
	maxDialDataPayload = 4096

	// maxDialDataXML is the rendering budget for the additionalData
	// fragment in status responses.
	maxDialDataXML = 8 * 1024
)

// hiddenStateMinVersion is the lowest client protocol version that
// understands the hidden state. Older clients are shown stopped instead.
const hiddenStateMinVersion = 2.09

// isPrintableASCII reports whether the payload contains only printable
// ASCII characters. Tab, CR and LF are tolerated; everything else outside
// 0x20..0x7E is rejected.
func isPrintableASCII(data []byte) bool {
	for _, b := range data {
		if b == '\t' || b == '\r' || b == '\n' {
			continue
		}
		if b < 0x20 || b > 0x7e {
			return false
		}
	}
	return true
}

// parseClientVersion parses the clientDialVer query parameter. Missing or
// malformed values are treated as version 0, the most conservative choice.
func parseClientVersion(raw string) float64 {
	if raw == "" {
		return 0
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return v
}
