package ai

import (
	"encoding/json"
	"strings"
)

const fence = "```"

// extractJSON returns the first ```json fenced block and the text after it.
// Without a fence it falls back to the outermost [...] when the text looks
// like a detection list.
func extractJSON(text string) (block, rest string, ok bool) {
	if start := strings.Index(text, fence+"json"); start >= 0 {
		body := text[start+len(fence)+4:]
		end := strings.Index(body, fence)
		if end < 0 {
			return "", text, false
		}
		before := strings.TrimSpace(text[:start])
		after := strings.TrimSpace(body[end+len(fence):])
		if after == "" {
			after = before
		}
		return strings.TrimSpace(body[:end]), after, true
	}

	open := strings.Index(text, "[")
	closeIdx := strings.LastIndex(text, "]")
	if open >= 0 && closeIdx > open && strings.Contains(text, "name") {
		return text[open : closeIdx+1], strings.TrimSpace(text[closeIdx+1:]), true
	}
	return "", text, false
}

// ParseDetections extracts the detection list from a single-image answer.
// A missing or malformed block yields no detections and the full text.
func ParseDetections(text string) ([]Detection, string) {
	block, rest, ok := extractJSON(text)
	if !ok {
		return nil, strings.TrimSpace(text)
	}

	var detections []Detection
	if err := json.Unmarshal([]byte(block), &detections); err != nil {
		var wrapped struct {
			People []Detection `json:"people"`
		}
		if json.Unmarshal([]byte(block), &wrapped) != nil {
			return nil, strings.TrimSpace(text)
		}
		detections = wrapped.People
	}
	return detections, rest
}

type multiPayload struct {
	PrimaryCamera string                     `json:"primary_camera"`
	Cameras       map[string]json.RawMessage `json:"cameras"`
}

type finderEntry struct {
	Found    []Detection `json:"found"`
	NotFound []string    `json:"not_found"`
}

// ParseMulti extracts per-camera detections from a multi-image answer.
// Camera names in the answer are resolved to ids of images, exactly first
// and then by case-insensitive containment. Each camera entry may be a
// detection list or an object with found and not_found lists.
func ParseMulti(text string, images []Image) MultiResult {
	result := MultiResult{
		Text:     strings.TrimSpace(text),
		Raw:      text,
		ByCamera: make(map[string][]Detection),
	}

	block, rest, ok := extractJSON(text)
	if !ok {
		return result
	}

	var payload multiPayload
	if err := json.Unmarshal([]byte(block), &payload); err != nil {
		return result
	}
	result.Text = rest
	result.PrimaryCamera = resolveCamera(payload.PrimaryCamera, images)

	for name, raw := range payload.Cameras {
		id := resolveCamera(name, images)
		if id == "" {
			continue
		}

		var list []Detection
		if json.Unmarshal(raw, &list) == nil {
			result.ByCamera[id] = list
			continue
		}

		var entry finderEntry
		if json.Unmarshal(raw, &entry) == nil {
			for i := range entry.Found {
				if entry.Found[i].Status == "" {
					entry.Found[i].Status = StatusKnown
				}
			}
			result.ByCamera[id] = entry.Found
			if len(entry.NotFound) > 0 {
				if result.NotFound == nil {
					result.NotFound = make(map[string][]string)
				}
				result.NotFound[id] = entry.NotFound
			}
		}
	}
	return result
}

func resolveCamera(name string, images []Image) string {
	if name == "" {
		return ""
	}
	for _, img := range images {
		if img.CameraName == name || img.CameraID == name {
			return img.CameraID
		}
	}
	lower := strings.ToLower(name)
	for _, img := range images {
		label := strings.ToLower(img.CameraName)
		if label == "" {
			continue
		}
		if strings.Contains(lower, label) || strings.Contains(label, lower) {
			return img.CameraID
		}
	}
	return ""
}
