package analysis

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/smazurov/watchnode/internal/scheduler"
	"github.com/smazurov/watchnode/internal/storage"
)

var readingPattern = regexp.MustCompile(`[-+]?\d(?:[\d ,.]*\d)?`)

// ParseReading returns the first number in a model answer. Digit groups
// separated by spaces are joined. A lone comma is a decimal comma; with
// both separators present, commas group thousands.
func ParseReading(text string) (float64, bool) {
	match := readingPattern.FindString(text)
	if match == "" {
		return 0, false
	}
	match = strings.ReplaceAll(match, " ", "")

	commas, dots := strings.Count(match, ","), strings.Count(match, ".")
	switch {
	case commas > 0 && dots > 0:
		match = strings.ReplaceAll(match, ",", "")
	case commas == 1:
		match = strings.Replace(match, ",", ".", 1)
	case commas > 1:
		match = strings.ReplaceAll(match, ",", "")
	case dots > 1:
		match = strings.ReplaceAll(match, ".", "")
	}

	v, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func formatReading(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ReadMeter captures the meter's camera and asks the model for the reading.
func (r *Runner) ReadMeter(ctx context.Context, meterID string) (*Result, error) {
	subject := "meter_" + meterID
	return r.track(ctx, scheduler.KindMeter, subject, func(ctx context.Context) (*Result, error) {
		settings := r.settings()
		meter, ok := settings.Meters[meterID]
		if !ok {
			return nil, newError(ErrCodeMeterNotFound, fmt.Sprintf("meter %s is not configured", meterID), nil)
		}

		frame, err := r.capture(ctx, meter.CameraID)
		if err != nil {
			return nil, err
		}

		prompt := buildPrompt([]string{meter.Prompt, defaultMeterPrompt}, "", "", "")
		answer, err := r.analyzer.Analyze(ctx, frame, prompt, nil)
		if err != nil {
			return nil, newError(ErrCodeCallFailed, "vision model call failed", err)
		}
		reading, ok := ParseReading(answer.Text)
		if !ok {
			return nil, newError(ErrCodeCallFailed, fmt.Sprintf("no numeric reading in answer %q", answer.Text), nil)
		}

		now := r.now()
		name := meter.Name
		if name == "" {
			name = meterID
		}
		res := &Result{
			Text:      answer.Text,
			Reading:   &reading,
			Unit:      meter.Unit,
			Timestamp: now,
		}

		key, url := r.saveSnapshot(ctx, subject, now, "", frame)
		res.SnapshotURL = url
		ev := &storage.Event{
			Timestamp:   now,
			Subject:     subject,
			Kind:        string(scheduler.KindMeter),
			CameraID:    meter.CameraID,
			SnapshotKey: key,
			SnapshotURL: url,
			Text:        answer.Text,
			Prompt:      prompt,
			Detections:  encodeDetections(map[string]any{"reading": reading, "unit": meter.Unit}),
		}
		if r.appendEvent(ctx, ev) {
			res.EventID = ev.ID
		}

		res.Notified = r.notifyChat(ctx, res.EventID, subject, meter.Recipients, frame,
			meterCaption(name, reading, meter.Unit, answer.Text))

		payload := map[string]any{
			"meter_id":  meterID,
			"name":      name,
			"reading":   reading,
			"unit":      meter.Unit,
			"text":      answer.Text,
			"event_id":  res.EventID,
			"timestamp": now.Format(time.RFC3339),
		}
		r.notifier.PublishResult(ctx, res.EventID, subject, "meters/"+meterID+"/reading", payload)
		r.notifier.PostWebhook(ctx, res.EventID, subject, withKind(payload, scheduler.KindMeter))
		return res, nil
	})
}

// ReadAllMeters reads every configured meter. Each failure is collected and
// does not stop the remaining reads.
func (r *Runner) ReadAllMeters(ctx context.Context) ([]*Result, error) {
	settings := r.settings()
	var (
		results []*Result
		errs    []error
	)
	for _, id := range slices.Sorted(maps.Keys(settings.Meters)) {
		res, err := r.ReadMeter(ctx, id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		results = append(results, res)
	}
	return results, errors.Join(errs...)
}
