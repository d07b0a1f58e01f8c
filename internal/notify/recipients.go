// Package notify delivers analysis results to chat, MQTT and webhook
// consumers and routes inbound triggers from them.
package notify

import (
	"encoding/json"
	"strings"
	"unicode"
)

// Recipient is one chat destination.
type Recipient struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ParseRecipients accepts a JSON list (of strings or {name, value} objects)
// or a comma or whitespace separated string.
func ParseRecipients(raw string) []Recipient {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	if strings.HasPrefix(raw, "[") {
		var objects []Recipient
		if json.Unmarshal([]byte(raw), &objects) == nil {
			return normalizeRecipients(objects)
		}
		var values []string
		if json.Unmarshal([]byte(raw), &values) == nil {
			return RecipientList(values)
		}
	}

	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
	return RecipientList(fields)
}

// RecipientList converts configured values. Each value may itself be a
// separated list; "name=value" entries keep their display name.
func RecipientList(values []string) []Recipient {
	var out []Recipient
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if strings.ContainsAny(v, ", \t\n") || strings.HasPrefix(v, "[") {
			out = append(out, ParseRecipients(v)...)
			continue
		}
		name, value, ok := strings.Cut(v, "=")
		if !ok {
			name, value = v, v
		}
		out = append(out, Recipient{Name: strings.TrimSpace(name), Value: strings.TrimSpace(value)})
	}
	return normalizeRecipients(out)
}

func normalizeRecipients(in []Recipient) []Recipient {
	seen := make(map[string]bool, len(in))
	out := make([]Recipient, 0, len(in))
	for _, r := range in {
		r.Value = strings.TrimSpace(r.Value)
		if r.Value == "" || seen[r.Value] {
			continue
		}
		seen[r.Value] = true
		if r.Name == "" {
			r.Name = r.Value
		}
		out = append(out, r)
	}
	return out
}

// ChatID converts a phone number or group id to a WhatsApp JID.
// Values under 15 characters are personal chats, longer ones are groups.
func ChatID(value string) string {
	value = strings.TrimSpace(value)
	if strings.Contains(value, "@") {
		return value
	}
	value = strings.TrimPrefix(value, "+")
	if len(value) < 15 {
		return value + "@s.whatsapp.net"
	}
	return value + "@g.us"
}

func digits(s string) string {
	if at := strings.IndexByte(s, '@'); at >= 0 {
		s = s[:at]
	}
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// minAuthDigits is the shortest number suffix accepted as a match.
const minAuthDigits = 9

// Authorized reports whether sender matches one of the recipients.
// Numbers match exactly or on their last nine digits, so local and
// international formats of the same number agree.
func Authorized(sender string, recipients []Recipient) bool {
	s := digits(sender)
	if s == "" {
		return false
	}
	for _, r := range recipients {
		a := digits(r.Value)
		if a == "" {
			continue
		}
		if a == s {
			return true
		}
		if len(a) < minAuthDigits || len(s) < minAuthDigits {
			continue
		}
		if s[len(s)-minAuthDigits:] == a[len(a)-minAuthDigits:] {
			return true
		}
	}
	return false
}
