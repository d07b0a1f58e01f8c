package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/smazurov/watchnode/internal/ai"
	"github.com/smazurov/watchnode/internal/notify"
	"github.com/smazurov/watchnode/internal/scheduler"
	"github.com/smazurov/watchnode/internal/storage"
)

// singleJob is a one-camera analysis: camera analysis or doorbell.
type singleJob struct {
	kind       scheduler.Kind
	subject    string
	cameraID   string
	cameraName string
	prompt     string
	recipients []string
	caption    func(name, text string) string
}

// AnalyzeCamera captures the camera's current frame, describes it, stores
// the event and notifies the camera's recipients.
func (r *Runner) AnalyzeCamera(ctx context.Context, cameraID string) (*Result, error) {
	return r.track(ctx, scheduler.KindCameraAnalysis, cameraID, func(ctx context.Context) (*Result, error) {
		settings := r.settings()
		cam, ok := settings.Cameras[cameraID]
		if !ok {
			return nil, newError(ErrCodeCameraNotFound, fmt.Sprintf("camera %s is not configured", cameraID), nil)
		}

		job := singleJob{
			kind:       scheduler.KindCameraAnalysis,
			subject:    cameraID,
			cameraID:   cameraID,
			cameraName: cameraName(settings, cameraID),
			prompt:     buildPrompt([]string{cam.Prompt, settings.AI.DefaultPrompt, defaultCameraPrompt}, cam.Instruction, settings.AI.Language, detectionFormat),
			caption:    cameraCaption,
		}
		if cam.Notify {
			job.recipients = cam.Recipients
		}
		return r.analyzeSingle(ctx, job)
	})
}

// Doorbell analyzes the configured doorbell camera with the doorbell prompt.
func (r *Runner) Doorbell(ctx context.Context) (*Result, error) {
	return r.track(ctx, scheduler.KindDoorbell, "doorbell", func(ctx context.Context) (*Result, error) {
		settings := r.settings()
		bell := settings.Doorbell
		if bell.CameraID == "" {
			return nil, newError(ErrCodeCameraNotFound, "no doorbell camera configured", nil)
		}
		if _, ok := settings.Cameras[bell.CameraID]; !ok {
			return nil, newError(ErrCodeCameraNotFound, fmt.Sprintf("doorbell camera %s is not configured", bell.CameraID), nil)
		}

		return r.analyzeSingle(ctx, singleJob{
			kind:       scheduler.KindDoorbell,
			subject:    "doorbell",
			cameraID:   bell.CameraID,
			cameraName: cameraName(settings, bell.CameraID),
			prompt:     buildPrompt([]string{bell.Prompt, defaultDoorbellPrompt}, bell.Instruction, settings.AI.Language, detectionFormat),
			recipients: bell.Recipients,
			caption:    doorbellCaption,
		})
	})
}

func (r *Runner) analyzeSingle(ctx context.Context, job singleJob) (*Result, error) {
	frame, err := r.capture(ctx, job.cameraID)
	if err != nil {
		return nil, err
	}

	answer, err := r.analyzer.Analyze(ctx, frame, job.prompt, r.references())
	if err != nil {
		return nil, newError(ErrCodeCallFailed, "vision model call failed", err)
	}

	now := r.now()
	recognized, unknown := splitDetections(answer.Detections)
	res := &Result{
		Text:         answer.Text,
		Detections:   answer.Detections,
		Recognized:   recognized,
		UnknownCount: unknown,
		Timestamp:    now,
	}
	if res.Detections == nil {
		res.Detections = []ai.Detection{}
	}

	key, url := r.saveSnapshot(ctx, job.subject, now, "", frame)
	res.SnapshotURL = url

	ev := &storage.Event{
		Timestamp:   now,
		Subject:     job.subject,
		Kind:        string(job.kind),
		CameraID:    job.cameraID,
		SnapshotKey: key,
		SnapshotURL: url,
		Text:        answer.Text,
		Faces:       recognized,
		Prompt:      job.prompt,
		Detections:  encodeDetections(answer.Detections),
	}
	if r.appendEvent(ctx, ev) {
		res.EventID = ev.ID
		r.recordSightings(ctx, recognized, now)
		r.queueUnknowns(ctx, ev, frame, answer.Detections)
	}

	res.Notified = r.notifyChat(ctx, res.EventID, job.subject, job.recipients, frame, job.caption(job.cameraName, answer.Text))

	persons := recognized
	if persons == nil {
		persons = []string{}
	}
	r.notifier.PublishCameraEvent(ctx, notify.CameraEvent{
		CameraID:    job.cameraID,
		CameraName:  job.cameraName,
		Analysis:    answer.Text,
		Detections:  res.Detections,
		Persons:     persons,
		PersonCount: len(res.Detections),
		EventID:     res.EventID,
		Timestamp:   now.Format(time.RFC3339),
	}, frame)

	if len(recognized) > 0 {
		r.notifier.PublishResult(ctx, res.EventID, job.subject, "faces/detected", map[string]any{
			"camera_id": job.cameraID,
			"faces":     recognized,
			"event_id":  res.EventID,
			"timestamp": now.Format(time.RFC3339),
		})
	}

	r.notifier.PostWebhook(ctx, res.EventID, job.subject, webhookPayload(job.kind, job.subject, res))
	return res, nil
}

// queueUnknowns adds every unrecognized detection to the labeling queue,
// cropped to its box when the box is usable and the full snapshot otherwise.
func (r *Runner) queueUnknowns(ctx context.Context, ev *storage.Event, frame []byte, detections []ai.Detection) {
	crops := newCropper(frame)
	for i, d := range detections {
		if d.Known() {
			continue
		}

		imageKey := ev.SnapshotKey
		if crop, ok := crops.crop(d.Box); ok {
			if key, _ := r.saveSnapshot(ctx, ev.Subject, ev.Timestamp, fmt.Sprintf("unknown_%d", i), crop); key != "" {
				imageKey = key
			}
		}
		if imageKey == "" {
			continue
		}

		err := r.store.AddUnknownPerson(ctx, &storage.UnknownPerson{
			EventID:   ev.ID,
			CameraID:  ev.CameraID,
			ImageKey:  imageKey,
			Timestamp: ev.Timestamp,
		})
		if err != nil {
			r.logger.Warn("Failed to queue unknown person", "event_id", ev.ID, "error", err)
		}
	}
}

func encodeDetections(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

func webhookPayload(kind scheduler.Kind, subject string, res *Result) map[string]any {
	return map[string]any{
		"kind":         string(kind),
		"subject":      subject,
		"event_id":     res.EventID,
		"text":         res.Text,
		"detections":   res.Detections,
		"recognized":   res.Recognized,
		"snapshot_url": res.SnapshotURL,
		"timestamp":    res.Timestamp.Format(time.RFC3339),
	}
}
