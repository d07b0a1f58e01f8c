package events

// Event type constants for kelindar/event.
const (
	TypeCameraAdded uint32 = iota + 1
	TypeCameraRemoved
	TypeCameraStateChanged
	TypeAnalysisStarted
	TypeAnalysisCompleted
	TypeAnalysisFailed
	TypeJobFired
	TypeNotificationSent
	TypeLogEntry
	TypeSettingsApplied
	TypeCameraMetrics
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// CameraAddedEvent is published when a camera handle is created or replaced.
type CameraAddedEvent struct {
	CameraID  string `json:"camera_id" example:"front_door" doc:"Camera identifier"`
	Name      string `json:"name" example:"Front Door" doc:"Display name"`
	URI       string `json:"uri" example:"rtsp://192.168.1.20/stream1" doc:"Source URI"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for CameraAddedEvent.
func (e CameraAddedEvent) Type() uint32 { return TypeCameraAdded }

// CameraRemovedEvent is published after a camera handle is stopped and dropped.
type CameraRemovedEvent struct {
	CameraID  string `json:"camera_id" example:"front_door" doc:"Camera identifier"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for CameraRemovedEvent.
func (e CameraRemovedEvent) Type() uint32 { return TypeCameraRemoved }

// CameraStateChangedEvent reports a capture loop state transition.
type CameraStateChangedEvent struct {
	CameraID  string `json:"camera_id" example:"front_door" doc:"Camera identifier"`
	From      string `json:"from" example:"connecting" doc:"Previous state"`
	To        string `json:"to" example:"streaming" doc:"New state"`
	Error     string `json:"error,omitempty" doc:"Error that caused the transition"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for CameraStateChangedEvent.
func (e CameraStateChangedEvent) Type() uint32 { return TypeCameraStateChanged }

// AnalysisStartedEvent is published when an analysis job begins.
type AnalysisStartedEvent struct {
	Subject   string `json:"subject" example:"front_door" doc:"Camera id or global subject (patrol, person_finder, meter)"`
	Kind      string `json:"kind" example:"camera_analysis" doc:"Job kind"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for AnalysisStartedEvent.
func (e AnalysisStartedEvent) Type() uint32 { return TypeAnalysisStarted }

// AnalysisCompletedEvent is published when an analysis job stored its result.
type AnalysisCompletedEvent struct {
	Subject     string `json:"subject" example:"front_door" doc:"Camera id or global subject"`
	Kind        string `json:"kind" example:"camera_analysis" doc:"Job kind"`
	EventID     string `json:"event_id" doc:"Stored event record id"`
	Text        string `json:"text" doc:"Model description"`
	Detections  int    `json:"detections" example:"2" doc:"Number of detections"`
	SnapshotURL string `json:"snapshot_url,omitempty" doc:"Stored snapshot location"`
	DurationMs  int64  `json:"duration_ms" example:"2300" doc:"Job duration in milliseconds"`
	Timestamp   string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for AnalysisCompletedEvent.
func (e AnalysisCompletedEvent) Type() uint32 { return TypeAnalysisCompleted }

// AnalysisFailedEvent is published when an analysis job returns an error.
type AnalysisFailedEvent struct {
	Subject   string `json:"subject" example:"front_door" doc:"Camera id or global subject"`
	Kind      string `json:"kind" example:"camera_analysis" doc:"Job kind"`
	Code      string `json:"code,omitempty" example:"NO_FRAME" doc:"Error code"`
	Error     string `json:"error" doc:"Error description"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for AnalysisFailedEvent.
func (e AnalysisFailedEvent) Type() uint32 { return TypeAnalysisFailed }

// JobFiredEvent is published after a scheduled or manual job body returns.
type JobFiredEvent struct {
	JobID      string `json:"job_id" example:"analysis_front_door" doc:"Schedule job id"`
	Kind       string `json:"kind" example:"camera_analysis" doc:"Job kind"`
	Manual     bool   `json:"manual" doc:"Whether the job was triggered outside the schedule"`
	DurationMs int64  `json:"duration_ms" doc:"Body duration in milliseconds"`
	Error      string `json:"error,omitempty" doc:"Error returned by the body"`
	Timestamp  string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for JobFiredEvent.
func (e JobFiredEvent) Type() uint32 { return TypeJobFired }

// NotificationSentEvent reports a delivery attempt on one channel.
type NotificationSentEvent struct {
	Channel   string `json:"channel" example:"whatsapp" doc:"Delivery channel: whatsapp, mqtt, webhook"`
	Target    string `json:"target" example:"6281234567890@s.whatsapp.net" doc:"Recipient, topic or URL"`
	Subject   string `json:"subject,omitempty" doc:"Subject the notification was about"`
	Success   bool   `json:"success" doc:"Whether delivery succeeded"`
	Error     string `json:"error,omitempty" doc:"Delivery error"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for NotificationSentEvent.
func (e NotificationSentEvent) Type() uint32 { return TypeNotificationSent }

// LogEntryEvent represents a log entry for SSE streaming.
type LogEntryEvent struct {
	Seq        uint64         `json:"seq" example:"42" doc:"Monotonic sequence number for deduplication"`
	Timestamp  string         `json:"timestamp" example:"2025-01-09T10:30:00.123Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"api" doc:"Source module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }

// SettingsAppliedEvent is published after settings were applied to the registry and scheduler.
type SettingsAppliedEvent struct {
	Cameras   int    `json:"cameras" example:"3" doc:"Number of live cameras"`
	Jobs      int    `json:"jobs" example:"4" doc:"Number of installed schedule entries"`
	Source    string `json:"source" example:"reload" doc:"What triggered the apply: startup, reload, api"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for SettingsAppliedEvent.
func (e SettingsAppliedEvent) Type() uint32 { return TypeSettingsApplied }

// CameraMetricsEvent carries periodic capture counters for one camera.
type CameraMetricsEvent struct {
	EventType  string `json:"type"`
	CameraID   string `json:"camera_id"`
	State      string `json:"state"`
	FPS        string `json:"fps"`
	Frames     string `json:"frames"`
	Reconnects string `json:"reconnects"`
}

// Type returns the event type identifier for CameraMetricsEvent.
func (e CameraMetricsEvent) Type() uint32 { return TypeCameraMetrics }
