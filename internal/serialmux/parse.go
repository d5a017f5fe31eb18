package serialmux

import "strings"

const (
	LineTypeFrame   = "frame"
	LineTypeStatus  = "status"
	LineTypeUnknown = "unknown"
)

// ClassifyLine returns a coarse type for a line read from the coprocessor.
// Keypoint frames are JSON objects; command acknowledgements and boot
// messages are prefixed with "OK", "ERR" or "#".
func ClassifyLine(line string) string {
	line = strings.TrimSpace(line)
	switch {
	case strings.HasPrefix(line, "{"):
		return LineTypeFrame
	case strings.HasPrefix(line, "OK"), strings.HasPrefix(line, "ERR"), strings.HasPrefix(line, "#"):
		return LineTypeStatus
	default:
		return LineTypeUnknown
	}
}
