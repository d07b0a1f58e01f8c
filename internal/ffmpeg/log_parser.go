package ffmpeg

import "strings"

// ParseLogLevel splits an ffmpeg line written with -loglevel level+...
// into its level and message. Two shapes occur:
//
//	[warning] message
//	[rtsp @ 0x55d0] [error] message
//
// In the second the component prefix stays in the message. Lines without
// a recognised level are returned whole at "info".
func ParseLogLevel(line string) (level, msg string) {
	if lvl, rest, ok := cutLevel(line); ok {
		return lvl, rest
	}
	if strings.HasPrefix(line, "[") {
		if end := strings.Index(line, "] "); end > 0 {
			component, rest := line[:end+2], line[end+2:]
			if lvl, tail, ok := cutLevel(rest); ok {
				return lvl, component + tail
			}
		}
	}
	return "info", line
}

// cutLevel strips a leading "[level] " when level is an ffmpeg level name.
func cutLevel(s string) (level, rest string, ok bool) {
	inner, ok := strings.CutPrefix(s, "[")
	if !ok {
		return "", s, false
	}
	level, rest, ok = strings.Cut(inner, "] ")
	if !ok {
		return "", s, false
	}
	switch level {
	case "quiet", "panic", "fatal", "error", "warning", "info", "verbose", "debug", "trace":
		return level, rest, true
	}
	return "", s, false
}
