// Package normalizer turns raw broker webhook bodies into typed events.
//
// The `event` discriminator selects the variant. Every field the variant
// requires must be present, non-null and of the right JSON type; anything
// else is rejected with ErrInvalidEvent before a typed decode is attempted.
package normalizer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Misakaka10086/IoT-Platform/internal/models"
)

// ErrInvalidEvent is returned for bodies that are not a known, well-formed event.
var ErrInvalidEvent = errors.New("invalid event")

type fieldType int

const (
	typeString fieldType = iota
	typeInteger
	typeBool
	typeObject
)

func (t fieldType) String() string {
	switch t {
	case typeString:
		return "string"
	case typeInteger:
		return "integer"
	case typeBool:
		return "boolean"
	default:
		return "object"
	}
}

type field struct {
	name string
	typ  fieldType
}

var (
	envelopeFields = []field{
		{"timestamp", typeInteger},
		{"node", typeString},
		{"clientid", typeString},
		{"username", typeString},
	}

	connectionFields = []field{
		{"sockname", typeString},
		{"peername", typeString},
		{"proto_name", typeString},
		{"proto_ver", typeInteger},
		{"client_attrs", typeObject},
	}

	required = map[models.EventKind][]field{
		models.KindClientConnected: concat(envelopeFields, connectionFields, []field{
			{"connected_at", typeInteger},
			{"keepalive", typeInteger},
			{"clean_start", typeBool},
			{"expiry_interval", typeInteger},
			{"mountpoint", typeString},
			{"is_bridge", typeBool},
			{"receive_maximum", typeInteger},
			{"conn_props", typeObject},
		}),
		models.KindClientDisconnected: concat(envelopeFields, connectionFields, []field{
			{"disconnected_at", typeInteger},
			{"reason", typeString},
			{"disconn_props", typeObject},
		}),
		models.KindMessagePublish: concat(envelopeFields, []field{
			{"topic", typeString},
			{"payload", typeString},
		}),
	}

	optional = []field{
		{"metadata", typeObject},
	}
)

// Normalize parses body into *models.ClientConnected, *models.ClientDisconnected
// or *models.PublishEvent.
func Normalize(body []byte) (models.Event, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: body is not a JSON object: %v", ErrInvalidEvent, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: body is null", ErrInvalidEvent)
	}

	var kind models.EventKind
	discriminator, ok := raw["event"]
	if !ok || isNull(discriminator) {
		return nil, fmt.Errorf("%w: missing field \"event\"", ErrInvalidEvent)
	}
	if err := json.Unmarshal(discriminator, &kind); err != nil {
		return nil, fmt.Errorf("%w: field \"event\" must be a string", ErrInvalidEvent)
	}

	fields, known := required[kind]
	if !known {
		return nil, fmt.Errorf("%w: unknown event %q", ErrInvalidEvent, kind)
	}
	for _, f := range fields {
		v, ok := raw[f.name]
		if !ok || isNull(v) {
			return nil, fmt.Errorf("%w: missing field %q", ErrInvalidEvent, f.name)
		}
		if !f.typ.matches(v) {
			return nil, fmt.Errorf("%w: field %q must be %s", ErrInvalidEvent, f.name, f.typ)
		}
	}
	for _, f := range optional {
		if v, ok := raw[f.name]; ok && !isNull(v) && !f.typ.matches(v) {
			return nil, fmt.Errorf("%w: field %q must be %s", ErrInvalidEvent, f.name, f.typ)
		}
	}

	var ev models.Event
	switch kind {
	case models.KindClientConnected:
		ev = &models.ClientConnected{}
	case models.KindClientDisconnected:
		ev = &models.ClientDisconnected{}
	case models.KindMessagePublish:
		ev = &models.PublishEvent{}
	}
	if err := json.Unmarshal(body, ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	return ev, nil
}

// NormalizeConnection accepts only client.connected and client.disconnected.
func NormalizeConnection(body []byte) (models.ConnectionEvent, error) {
	ev, err := Normalize(body)
	if err != nil {
		return nil, err
	}
	conn, ok := ev.(models.ConnectionEvent)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not a connection event", ErrInvalidEvent, ev.Kind())
	}
	return conn, nil
}

// NormalizePublish accepts only message.publish.
func NormalizePublish(body []byte) (*models.PublishEvent, error) {
	ev, err := Normalize(body)
	if err != nil {
		return nil, err
	}
	pub, ok := ev.(*models.PublishEvent)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not a publish event", ErrInvalidEvent, ev.Kind())
	}
	return pub, nil
}

func (t fieldType) matches(v json.RawMessage) bool {
	switch t {
	case typeString:
		var s string
		return json.Unmarshal(v, &s) == nil
	case typeInteger:
		var n int64
		return json.Unmarshal(v, &n) == nil
	case typeBool:
		var b bool
		return json.Unmarshal(v, &b) == nil
	case typeObject:
		trimmed := bytes.TrimSpace(v)
		return len(trimmed) > 0 && trimmed[0] == '{'
	}
	return false
}

func isNull(v json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}

func concat(groups ...[]field) []field {
	var out []field
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}
