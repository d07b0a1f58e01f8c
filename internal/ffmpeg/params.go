package ffmpeg

// Input formats understood by the capture builder.
const (
	FormatV4L2 = "v4l2"
	FormatRTSP = "rtsp"
	FormatHTTP = "http"
)

// Params represents all parameters needed to generate a capture command.
type Params struct {
	Binary string // ffmpeg executable (empty = "ffmpeg" from PATH)

	// Input Configuration
	Input       string // /dev/video0, rtsp://..., http://...
	Format      string // v4l2, rtsp, http
	InputFormat string // v4l2 pixel format: mjpeg, yuyv422
	Resolution  string // 1280x720
	TimeoutSec  int    // open/read timeout for network inputs (0 = ffmpeg default)

	// Output Configuration
	FPS     string // output frame rate (empty = source rate)
	Quality int    // mjpeg quantizer 2-31 (0 = 5)
	Frames  int    // stop after N frames (0 = continuous)
	Output  string // "-" for stdout pipe, otherwise a file path

	// Behavior Options
	Options []OptionType
}
