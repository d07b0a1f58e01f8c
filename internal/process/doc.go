// Package process supervises a single capture subprocess.
//
// A Process starts its child in its own process group. Stopping sends
// SIGINT and, if the child is still alive after the grace period, SIGKILL
// to the whole group. Stdout can be handed to a consumer for binary frame
// data while stderr is logged line by line at the level a LogParser
// extracts.
//
//	args, _ := ffmpeg.BuildCaptureArgs(&ffmpeg.Params{Input: "rtsp://cam/stream", Format: ffmpeg.FormatRTSP})
//	proc := process.New("front_door", args, logger,
//		process.WithStdout(splitFrames),
//		process.WithOutputLog(logging.GetLogger("ffmpeg"), ffmpeg.ParseLogLevel),
//	)
//	go proc.Run(ctx)
//	defer proc.Stop()
package process
