package core

import (
	"strconv"
)

// Message is a plugin-level JSON payload exchanged over a handle.
type Message map[string]any

// Str returns the value under key as a string. Numbers are rendered in
// decimal so numeric and string gateway ids look the same.
func (m Message) Str(key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	default:
		return ""
	}
}

func (m Message) Has(key string) bool {
	_, ok := m[key]
	return ok
}

// Kind returns the plugin discriminator ("joined", "event", "attached", ...).
func (m Message) Kind() string {
	if k := m.Str("videoroom"); k != "" {
		return k
	}
	return m.Str("streaming")
}

// IsPlugin reports whether m carries a known plugin discriminator.
func (m Message) IsPlugin() bool {
	_, vr := m["videoroom"].(string)
	_, st := m["streaming"].(string)
	return vr || st
}

// IsError reports whether the plugin rejected a request.
func (m Message) IsError() bool {
	if s, ok := m["error"].(string); ok && s != "" {
		return true
	}
	switch m["error_code"].(type) {
	case float64, int, int64, uint64:
		return true
	}
	return false
}

// Err returns a *RequestError for error payloads and nil otherwise.
func (m Message) Err() error {
	if !m.IsError() {
		return nil
	}
	return &RequestError{Payload: m}
}
