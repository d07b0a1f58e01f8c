package analysis

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/smazurov/watchnode/internal/ai"
	"github.com/smazurov/watchnode/internal/scheduler"
	"github.com/smazurov/watchnode/internal/storage"
)

// Patrol sweeps every enabled camera in one model call and reports a
// summary of the whole property.
func (r *Runner) Patrol(ctx context.Context) (*Result, error) {
	return r.track(ctx, scheduler.KindPatrol, "patrol", func(ctx context.Context) (*Result, error) {
		settings := r.settings()
		patrol := settings.Patrol

		images := r.sample(ctx, settings, patrol.Cameras)
		if len(images) == 0 {
			return nil, newError(ErrCodeNoFrame, "no active cameras to capture", nil)
		}

		prompt := buildPrompt([]string{patrol.Prompt, defaultPatrolPrompt}, patrol.Instruction, settings.AI.Language, multiFormat)
		answer, err := r.analyzer.AnalyzeMany(ctx, images, prompt, r.references())
		if err != nil {
			return nil, newError(ErrCodeCallFailed, "vision model call failed", err)
		}

		now := r.now()
		var all []ai.Detection
		for _, img := range images {
			all = append(all, answer.ByCamera[img.CameraID]...)
		}
		recognized, unknown := splitDetections(all)

		primary := pickImage(images, answer.PrimaryCamera)
		res := &Result{
			Text:           answer.Text,
			ByCamera:       answer.ByCamera,
			PrimaryCamera:  answer.PrimaryCamera,
			Recognized:     recognized,
			UnknownCount:   unknown,
			CamerasScanned: len(images),
			Timestamp:      now,
		}

		key, url := r.saveSnapshot(ctx, "patrol", now, "", primary.JPEG)
		res.SnapshotURL = url
		ev := &storage.Event{
			Timestamp:   now,
			Subject:     "patrol",
			Kind:        string(scheduler.KindPatrol),
			CameraID:    primary.CameraID,
			SnapshotKey: key,
			SnapshotURL: url,
			Text:        answer.Text,
			Faces:       recognized,
			Prompt:      prompt,
			Detections:  encodeDetections(answer.ByCamera),
		}
		if r.appendEvent(ctx, ev) {
			res.EventID = ev.ID
			r.recordSightings(ctx, recognized, now)
		}

		r.logger.Info("Patrol summary", "primary_camera", answer.PrimaryCamera, "recognized", recognized, "unknown", unknown)
		res.Notified = r.notifyChat(ctx, res.EventID, "patrol", patrol.Recipients, primary.JPEG,
			patrolCaption(answer.Text, recognized, unknown))

		payload := map[string]any{
			"summary":         answer.Text,
			"primary_camera":  answer.PrimaryCamera,
			"recognized":      nonNil(recognized),
			"unknown_count":   unknown,
			"cameras_scanned": len(images),
			"event_id":        res.EventID,
			"timestamp":       now.Format(time.RFC3339),
		}
		r.notifier.PublishResult(ctx, res.EventID, "patrol", "patrol/result", payload)
		r.notifier.PostWebhook(ctx, res.EventID, "patrol", withKind(payload, scheduler.KindPatrol))
		return res, nil
	})
}

// FindPersons searches every enabled camera for the named people using
// their reference faces. Empty recipients fall back to the configured ones.
func (r *Runner) FindPersons(ctx context.Context, names []string, prompt string, recipients []string) (*Result, error) {
	return r.track(ctx, scheduler.KindPersonFinder, "person_finder", func(ctx context.Context) (*Result, error) {
		settings := r.settings()
		names = cleanNames(names)
		if len(names) == 0 {
			return nil, newError(ErrCodeNoReferences, "no persons selected", nil)
		}
		if len(recipients) == 0 {
			recipients = settings.PersonFinder.Recipients
		}

		refs := r.references(names...)
		if len(refs) == 0 {
			return nil, newError(ErrCodeNoReferences,
				fmt.Sprintf("none of the requested people have a reference face: %s", strings.Join(names, ", ")), nil)
		}

		images := r.sample(ctx, settings, nil)
		if len(images) == 0 {
			return nil, newError(ErrCodeNoFrame, "no active cameras to scan", nil)
		}

		fullPrompt := finderPrompt(names, prompt, settings.AI.Language)
		answer, err := r.analyzer.AnalyzeMany(ctx, images, fullPrompt, refs)
		if err != nil {
			return nil, newError(ErrCodeCallFailed, "vision model call failed", err)
		}

		now := r.now()
		found := make(map[string][]Sighting)
		selected := images[0]
		matched := false
		for _, img := range images {
			for _, d := range answer.ByCamera[img.CameraID] {
				name := matchName(d.Name, names)
				if name == "" {
					continue
				}
				found[name] = append(found[name], Sighting{
					CameraID:   img.CameraID,
					CameraName: img.CameraName,
					Activity:   d.Activity,
					Confidence: d.Confidence,
				})
				if !matched {
					selected, matched = img, true
				}
			}
		}

		var foundNames, notFound []string
		for _, name := range names {
			if len(found[name]) > 0 {
				foundNames = append(foundNames, name)
			} else {
				notFound = append(notFound, name)
			}
		}
		r.logger.Info("Person finder results", "found", foundNames, "not_found", notFound)

		res := &Result{
			Text:           answer.Text,
			ByCamera:       answer.ByCamera,
			Recognized:     foundNames,
			Found:          found,
			NotFound:       notFound,
			CamerasScanned: len(images),
			Timestamp:      now,
		}

		key, url := r.saveSnapshot(ctx, "person_finder", now, "", selected.JPEG)
		res.SnapshotURL = url
		ev := &storage.Event{
			Timestamp:   now,
			Subject:     "person_finder",
			Kind:        string(scheduler.KindPersonFinder),
			CameraID:    selected.CameraID,
			SnapshotKey: key,
			SnapshotURL: url,
			Text:        answer.Text,
			Faces:       foundNames,
			Prompt:      fullPrompt,
			Detections:  encodeDetections(found),
		}
		if r.appendEvent(ctx, ev) {
			res.EventID = ev.ID
			r.recordSightings(ctx, foundNames, now)
		}

		res.Notified = r.notifyChat(ctx, res.EventID, "person_finder", recipients, selected.JPEG,
			finderCaption(names, found, notFound, len(images)))

		payload := map[string]any{
			"summary":         answer.Text,
			"found":           found,
			"not_found":       nonNil(notFound),
			"cameras_scanned": len(images),
			"event_id":        res.EventID,
			"timestamp":       now.Format(time.RFC3339),
		}
		r.notifier.PublishResult(ctx, res.EventID, "person_finder", "person_finder/result", payload)
		r.notifier.PostWebhook(ctx, res.EventID, "person_finder", withKind(payload, scheduler.KindPersonFinder))
		return res, nil
	})
}

// pickImage returns the image of the primary camera, or the first image.
func pickImage(images []ai.Image, primary string) ai.Image {
	for _, img := range images {
		if img.CameraID == primary {
			return img
		}
	}
	return images[0]
}

// matchName maps a name reported by the model onto one of the searched names.
func matchName(reported string, names []string) string {
	reported = strings.TrimSpace(reported)
	if reported == "" {
		return ""
	}
	for _, n := range names {
		if strings.EqualFold(n, reported) {
			return n
		}
	}
	return ""
}

func cleanNames(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n != "" && !slices.Contains(out, n) {
			out = append(out, n)
		}
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func withKind(payload map[string]any, kind scheduler.Kind) map[string]any {
	out := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		out[k] = v
	}
	out["kind"] = string(kind)
	return out
}
