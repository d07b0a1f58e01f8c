package ffmpeg

import (
	"fmt"
	"slices"
)

// OptionType names an input option that can be listed in settings.
type OptionType string

// Known input options.
const (
	OptionTCPTransport       OptionType = "tcp_transport"
	OptionLowLatency         OptionType = "low_latency"
	OptionGeneratePTS        OptionType = "genpts"
	OptionIgnoreErrors       OptionType = "ignore_err"
	OptionWallclockTimestamp OptionType = "wallclock_ts"
	OptionReconnect          OptionType = "reconnect"
)

// Option describes an input option and the arguments it expands to.
type Option struct {
	Key         OptionType `json:"key"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Args        []string   `json:"args"`
	// Formats limits the option to these input formats. Empty means all.
	Formats       []string     `json:"formats,omitempty"`
	ConflictsWith []OptionType `json:"conflicts_with,omitempty"`
}

// AllOptions lists every known input option.
var AllOptions = []Option{
	{
		Key:         OptionTCPTransport,
		Name:        "TCP Transport",
		Description: "Force RTSP over TCP to avoid UDP packet loss",
		Args:        []string{"-rtsp_transport", "tcp"},
		Formats:     []string{FormatRTSP},
	},
	{
		Key:         OptionLowLatency,
		Name:        "Low Latency Mode",
		Description: "Disable input buffering so the newest frame is always served",
		Args:        []string{"-fflags", "nobuffer", "-flags", "low_delay"},
	},
	{
		Key:           OptionGeneratePTS,
		Name:          "Generate PTS",
		Description:   "Generate presentation timestamps for streams with broken timing",
		Args:          []string{"-fflags", "+genpts"},
		ConflictsWith: []OptionType{OptionWallclockTimestamp},
	},
	{
		Key:         OptionIgnoreErrors,
		Name:        "Ignore Errors",
		Description: "Continue decoding despite corrupt packets",
		Args:        []string{"-err_detect", "ignore_err"},
	},
	{
		Key:           OptionWallclockTimestamp,
		Name:          "Wallclock Timestamps",
		Description:   "Use wallclock as timestamps",
		Args:          []string{"-use_wallclock_as_timestamps", "1"},
		ConflictsWith: []OptionType{OptionGeneratePTS},
	},
	{
		Key:         OptionReconnect,
		Name:        "HTTP Reconnect",
		Description: "Let ffmpeg reconnect dropped HTTP streams",
		Args:        []string{"-reconnect", "1", "-reconnect_streamed", "1", "-reconnect_delay_max", "5"},
		Formats:     []string{FormatHTTP},
	},
}

// GetOptionByKey returns the option named key, or nil.
func GetOptionByKey(key OptionType) *Option {
	i := slices.IndexFunc(AllOptions, func(o Option) bool { return o.Key == key })
	if i < 0 {
		return nil
	}
	return &AllOptions[i]
}

// ValidateOptions checks that every option is known and that no two conflict.
func ValidateOptions(selected []OptionType) error {
	for i, key := range selected {
		opt := GetOptionByKey(key)
		if opt == nil {
			return fmt.Errorf("unknown option: %s", key)
		}
		for _, earlier := range selected[:i] {
			if slices.Contains(opt.ConflictsWith, earlier) {
				return fmt.Errorf("option %s conflicts with %s", key, earlier)
			}
		}
	}
	return nil
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions(format string) []OptionType {
	switch format {
	case FormatRTSP:
		return []OptionType{OptionTCPTransport, OptionLowLatency}
	case FormatHTTP:
		return []OptionType{OptionReconnect, OptionLowLatency}
	default:
		return nil
	}
}

// OptionArgs expands the options that apply to format into ffmpeg arguments.
// Options for other formats are skipped.
func OptionArgs(options []OptionType, format string) []string {
	var args []string
	for _, key := range options {
		opt := GetOptionByKey(key)
		if opt == nil || (len(opt.Formats) > 0 && !slices.Contains(opt.Formats, format)) {
			continue
		}
		args = append(args, opt.Args...)
	}
	return args
}
