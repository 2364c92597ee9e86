// Package session turns the capture event stream into sessions ("meetings")
// and merges newly segmented sessions into a persisted history.
package session

import (
	"strings"
	"time"
)

// DeviceType identifies which side of a conversation produced an event.
type DeviceType string

const (
	DeviceInput   DeviceType = "input"
	DeviceOutput  DeviceType = "output"
	DeviceUnknown DeviceType = "unknown"
)

// ParseDeviceType maps the capture service's device type, case-insensitively.
func ParseDeviceType(s string) DeviceType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "input":
		return DeviceInput
	case "output":
		return DeviceOutput
	default:
		return DeviceUnknown
	}
}

// SpeakerLabel is the label written in front of each transcript line.
func (d DeviceType) SpeakerLabel() string {
	switch d {
	case DeviceInput:
		return "you"
	case DeviceOutput:
		return "others"
	default:
		return "unknown"
	}
}

// Kind is the capture modality of an event.
type Kind string

const (
	KindAudio Kind = "audio"
	KindOCR   Kind = "ocr"
	KindAll   Kind = "all"
)

// Event is one immutable capture record.
type Event struct {
	Timestamp time.Time
	Text      string
	Device    DeviceType
	Kind      Kind

	// Display-only context; never used for segmentation.
	DeviceName string
	AppName    string
	WindowName string
}

// lineTimeLayout is fixed-width so transcript lines sort lexically by time.
const lineTimeLayout = "2006-01-02T15:04:05.000Z07:00"

// RenderLine formats an event as one transcript line:
// "{timestamp} [{speaker}] {text}\n". Embedded newlines in the text are
// folded to spaces so that one event is always one line.
func RenderLine(e Event) string {
	text := strings.ReplaceAll(e.Text, "\r\n", " ")
	text = strings.ReplaceAll(text, "\n", " ")
	var b strings.Builder
	b.Grow(len(lineTimeLayout) + len(text) + 12)
	b.WriteString(e.Timestamp.UTC().Format(lineTimeLayout))
	b.WriteString(" [")
	b.WriteString(e.Device.SpeakerLabel())
	b.WriteString("] ")
	b.WriteString(text)
	b.WriteByte('\n')
	return b.String()
}

// lineTime parses the timestamp prefix of a rendered line.
func lineTime(line string) (time.Time, bool) {
	i := strings.IndexByte(line, ' ')
	if i <= 0 {
		return time.Time{}, false
	}
	t, err := time.Parse(lineTimeLayout, line[:i])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
