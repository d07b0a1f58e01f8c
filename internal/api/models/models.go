package models

// Health check models
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
	Cameras int    `json:"cameras" example:"3" doc:"Number of live cameras"`
	Jobs    int    `json:"jobs" example:"4" doc:"Number of installed schedule entries"`
	MQTT    bool   `json:"mqtt" doc:"Whether the MQTT bridge is connected"`
}

type HealthResponse struct {
	Body HealthData
}

// Version models
type VersionData struct {
	Version   string `json:"version" example:"1.0.0" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"abc1234" doc:"Git commit hash"`
	BuildDate string `json:"build_date" example:"2025-01-27T10:30:00Z" doc:"Build timestamp"`
	BuildID   string `json:"build_id" example:"42" doc:"Build identifier"`
	GoVersion string `json:"go_version" example:"go1.24.0" doc:"Go runtime version"`
	Compiler  string `json:"compiler" example:"gc" doc:"Go compiler"`
	Platform  string `json:"platform" example:"linux/arm64" doc:"Operating system and architecture"`
}

type VersionResponse struct {
	Body VersionData
}

// MessageData is a plain acknowledgement.
type MessageData struct {
	Message string `json:"message" example:"ok" doc:"Status message"`
}

type MessageResponse struct {
	Body MessageData
}

// ImageResponse carries raw JPEG bytes.
type ImageResponse struct {
	ContentType  string `header:"Content-Type"`
	CacheControl string `header:"Cache-Control"`
	Body         []byte
}

// NewImageResponse wraps JPEG bytes that must not be cached.
func NewImageResponse(data []byte) *ImageResponse {
	return &ImageResponse{ContentType: "image/jpeg", CacheControl: "no-store", Body: data}
}
