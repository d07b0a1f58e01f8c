package analysis

import (
	"fmt"
	"strings"
)

const (
	defaultCameraPrompt   = "Describe the current scene. If there are people, mention them by name if known or describe their appearance."
	defaultPatrolPrompt   = "Perform a holistic security patrol of the entire property using these camera snapshots. Summarize the state of the home. If everything is normal, say 'All Clear'. If there are any anomalies or people detected, describe them clearly."
	defaultDoorbellPrompt = "Analyse who is at the door, their appearance, and any objects they are carrying (e.g. packages). Determine if they look like a delivery person, friend, or stranger."
	defaultMeterPrompt    = "Read the utility meter in this image. Answer with the numeric reading shown on the display first, then a short note if any digit is unclear."

	detectionFormat = `Before the description, list every person you see in a JSON code block:
[{"name": "<known name or Unknown>", "status": "Known|Unknown", "box_2d": [ymin, xmin, ymax, xmax], "activity": "<what they are doing>"}]
Box coordinates are normalized to 0-1000. Use an empty list when nobody is visible.`

	multiFormat = `Before the summary, answer in a JSON code block:
{"primary_camera": "<camera with the most relevant activity>", "cameras": {"<camera name>": [{"name": "<known name or Unknown>", "status": "Known|Unknown", "activity": "<what they are doing>"}]}}`
)

// buildPrompt joins the first non-empty base prompt with the delivery
// instruction, the response language and the answer format.
func buildPrompt(bases []string, instruction, language, format string) string {
	var parts []string
	for _, b := range bases {
		if b = strings.TrimSpace(b); b != "" {
			parts = append(parts, b)
			break
		}
	}
	if instruction = strings.TrimSpace(instruction); instruction != "" {
		parts = append(parts, "Instruction for delivery: "+instruction)
	}
	if language = strings.TrimSpace(language); language != "" {
		parts = append(parts, fmt.Sprintf("Respond in %s.", language))
	}
	if format != "" {
		parts = append(parts, format)
	}
	return strings.Join(parts, "\n")
}

// finderPrompt asks for the named people across all camera images.
func finderPrompt(names []string, custom, language string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Search these camera images for the following people: %s.\n", strings.Join(names, ", "))
	b.WriteString("Compare every person visible with the reference images provided above.\n")
	if custom = strings.TrimSpace(custom); custom != "" {
		b.WriteString(custom + "\n")
	}
	b.WriteString(`Answer first with a JSON code block:
{"cameras": {"<camera name>": {"found": [{"name": "<person>", "activity": "<what they are doing>", "confidence": "high|medium|low"}], "not_found": ["<person>"]}}}
`)
	b.WriteString("After the JSON block, provide a natural language summary of where each person was found and what they are doing.")
	if language = strings.TrimSpace(language); language != "" {
		fmt.Fprintf(&b, "\nRespond in %s.", language)
	}
	return b.String()
}

func cameraCaption(name, text string) string {
	return fmt.Sprintf("🚨 *Watchnode Alert: %s*\n\n%s", name, text)
}

func doorbellCaption(name, text string) string {
	return fmt.Sprintf("🔔 *Doorbell: %s*\n\n%s", name, text)
}

func patrolCaption(summary string, recognized []string, unknown int) string {
	var b strings.Builder
	b.WriteString("🛡️ *Home Patrol Summary*")
	if len(recognized) > 0 {
		fmt.Fprintf(&b, "\n👤 Recognized: %s", strings.Join(recognized, ", "))
	}
	if unknown > 0 {
		fmt.Fprintf(&b, "\n⚠️ Unknown persons: %d", unknown)
	}
	b.WriteString("\n\n" + summary)
	return b.String()
}

func finderCaption(names []string, found map[string][]Sighting, notFound []string, scanned int) string {
	lines := []string{"🔍 *Person Finder Results*", ""}
	for _, name := range names {
		for _, s := range found[name] {
			lines = append(lines, fmt.Sprintf("%s *%s* - %s", confidenceMark(s.Confidence), name, s.CameraName))
			if s.Activity != "" {
				lines = append(lines, "   _"+s.Activity+"_")
			}
		}
	}
	if len(notFound) > 0 {
		lines = append(lines, "", "👻 Not found: "+strings.Join(notFound, ", "))
	}
	lines = append(lines, "", fmt.Sprintf("📷 %d cameras scanned", scanned))
	return strings.Join(lines, "\n")
}

func confidenceMark(c string) string {
	switch strings.ToLower(c) {
	case "high":
		return "🟢"
	case "low":
		return "🟠"
	default:
		return "🟡"
	}
}

func meterCaption(name string, reading float64, unit, text string) string {
	value := strings.TrimSpace(fmt.Sprintf("%s %s", formatReading(reading), unit))
	return fmt.Sprintf("📟 *%s*: %s\n\n%s", name, value, text)
}
