package events

import "time"

// Type identifies an event topic.
type Type string

const (
	// Device connectivity
	TypeDeviceListChanged Type = "device.list_changed"
	TypeDeviceConnected   Type = "device.connected"
	TypeDeviceFailed      Type = "device.failed"
	TypeInputValue        Type = "device.input_value"

	// Calibration sessions
	TypeCalibrationStarted Type = "calibration.session_started"
	TypeCalibrationStep    Type = "calibration.step_changed"
	TypeCalibrationSample  Type = "calibration.sample_collected"
	TypeCalibrationResult  Type = "calibration.result"

	// Notch mapping sessions
	TypeNotchStarted   Type = "notch.session_started"
	TypeNotchChanged   Type = "notch.notch_changed"
	TypeNotchSample    Type = "notch.sample_collected"
	TypeNotchSaved     Type = "notch.saved"
	TypeNotchCancelled Type = "notch.cancelled"

	// Firmware uploads
	TypeUploadStarted   Type = "upload.started"
	TypeUploadProgress  Type = "upload.progress"
	TypeUploadCompleted Type = "upload.completed"
	TypeUploadFailed    Type = "upload.failed"
)

// Event is one hub notification.
type Event struct {
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// New builds an event stamped with the current time.
func New(t Type, data any) Event {
	return Event{Type: t, Timestamp: time.Now(), Data: data}
}

// InputValueData is the payload of TypeInputValue.
type InputValueData struct {
	Port  string `json:"port"`
	Pin   uint8  `json:"pin"`
	Value int    `json:"value"`
}

// DeviceData is the payload of device connectivity events.
type DeviceData struct {
	Port   string `json:"port"`
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// CalibrationData is the payload of calibration session events.
type CalibrationData struct {
	SessionID string `json:"session_id"`
	Port      string `json:"port"`
	Pin       uint8  `json:"pin"`
	Step      string `json:"step,omitempty"`
	Samples   int    `json:"samples,omitempty"`
	Error     string `json:"error,omitempty"`
	Record    any    `json:"record,omitempty"`
}

// NotchData is the payload of notch mapping events.
type NotchData struct {
	SessionID string `json:"session_id"`
	Port      string `json:"port"`
	Pin       uint8  `json:"pin"`
	Notch     int    `json:"notch,omitempty"`
	Samples   int    `json:"samples,omitempty"`
	Error     string `json:"error,omitempty"`
}

// UploadData is the payload of firmware upload events.
type UploadData struct {
	Port     string `json:"port"`
	Board    string `json:"board,omitempty"`
	Percent  int    `json:"percent,omitempty"`
	Message  string `json:"message,omitempty"`
	Duration int64  `json:"duration_ms,omitempty"`
	Error    string `json:"error,omitempty"`
}
