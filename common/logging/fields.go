package logging

import (
	"log/slog"
	"time"
)

// Field names used across devicehub log records.
const (
	FieldService   = "service"
	FieldRequestID = "request_id"
	FieldDeviceID  = "device_id"
	FieldClientID  = "client_id"
	FieldEvent     = "event"
	FieldChannel   = "channel"
	FieldStage     = "stage"
	FieldStatus    = "status"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldDuration  = "duration_ms"
	FieldError     = "error"
)

func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

func RequestID(id string) slog.Attr {
	return slog.String(FieldRequestID, id)
}

func DeviceID(id string) slog.Attr {
	return slog.String(FieldDeviceID, id)
}

func ClientID(id string) slog.Attr {
	return slog.String(FieldClientID, id)
}

func Event(name string) slog.Attr {
	return slog.String(FieldEvent, name)
}

func Channel(name string) slog.Attr {
	return slog.String(FieldChannel, name)
}

func Stage(name string) slog.Attr {
	return slog.String(FieldStage, name)
}

func Method(method string) slog.Attr {
	return slog.String(FieldMethod, method)
}

func Path(path string) slog.Attr {
	return slog.String(FieldPath, path)
}

// Status is the HTTP status code of a response.
func Status(code int) slog.Attr {
	return slog.Int(FieldStatus, code)
}

// Duration is logged in milliseconds.
func Duration(d time.Duration) slog.Attr {
	return slog.Int64(FieldDuration, d.Milliseconds())
}

// Error returns an attribute for err; a nil error logs as an empty string.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(FieldError, "")
	}
	return slog.String(FieldError, err.Error())
}
