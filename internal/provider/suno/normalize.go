package suno

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dodoapp/lullaby-backend/internal/poller"
	"github.com/dodoapp/lullaby-backend/internal/provider"
)

var audioURLKeys = []string{"audioUrl", "audio_url", "url", "streamUrl", "stream_audio_url", "streamAudioUrl", "sourceAudioUrl"}

// Normalize maps the status payloads seen across Suno API versions onto a
// poller.Check. Envelopes carrying a code other than 200 are rejections.
func Normalize(body []byte) (poller.Check, error) {
	var root map[string]any
	if err := json.Unmarshal(body, &root); err != nil {
		return poller.Check{}, provider.Rejected(name, 200, "undecodable status payload: "+err.Error())
	}
	if code, ok := root["code"].(float64); ok && int(code) != 200 {
		return poller.Check{}, provider.Rejected(name, int(code), stringField(root, "msg", "message"))
	}

	data := root
	switch d := root["data"].(type) {
	case map[string]any:
		data = d
	case []any:
		if len(d) > 0 {
			if m, ok := d[0].(map[string]any); ok {
				data = m
			}
		}
	}

	check := poller.Check{
		Status:   mapStatus(stringField(data, "status")),
		AudioURL: audioURL(data),
	}
	if check.Status == poller.StatusFailed {
		check.Message = stringField(data, "errorMessage", "msg", "error")
		if check.Message == "" {
			check.Message = fmt.Sprintf("status %s", stringField(data, "status"))
		}
	}
	return check, nil
}

func mapStatus(raw string) poller.Status {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch s {
	case "complete", "completed", "finished", "success", "first_success":
		return poller.StatusComplete
	case "failed", "error":
		return poller.StatusFailed
	}
	if strings.HasSuffix(s, "_failed") || strings.HasSuffix(s, "_error") || strings.HasSuffix(s, "_exception") {
		return poller.StatusFailed
	}
	return poller.StatusPending
}

func audioURL(data map[string]any) string {
	if u := stringField(data, audioURLKeys...); u != "" {
		return u
	}
	resp, ok := data["response"].(map[string]any)
	if !ok {
		return ""
	}
	tracks, ok := resp["sunoData"].([]any)
	if !ok || len(tracks) == 0 {
		return ""
	}
	first, ok := tracks[0].(map[string]any)
	if !ok {
		return ""
	}
	return stringField(first, audioURLKeys...)
}

func stringField(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func taskID(body []byte, status int) (string, error) {
	var root map[string]any
	if err := json.Unmarshal(body, &root); err != nil {
		return "", provider.Rejected(name, status, "undecodable submission payload: "+err.Error())
	}
	if code, ok := root["code"].(float64); ok && int(code) != 200 {
		return "", provider.Rejected(name, int(code), stringField(root, "msg", "message"))
	}
	if d, ok := root["data"].(map[string]any); ok {
		if id := stringField(d, "taskId", "id"); id != "" {
			return id, nil
		}
	}
	if id := stringField(root, "taskId", "id"); id != "" {
		return id, nil
	}
	return "", provider.Rejected(name, status, "no taskId returned")
}

// errorMessage extracts a readable message from an error body.
func errorMessage(body []byte) string {
	var root map[string]any
	if json.Unmarshal(body, &root) == nil {
		if msg := stringField(root, "msg", "message", "error", "detail"); msg != "" {
			if code, ok := root["code"].(float64); ok {
				return fmt.Sprintf("[%d] %s", int(code), msg)
			}
			return msg
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 500 {
		msg = msg[:500]
	}
	return msg
}
