// internal/classifier/classifier.go
package classifier

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"device-session/internal/model"
)

// Reasons attached to ClassificationError payloads
const (
	ReasonInvalidJSON     = "invalid JSON payload"
	ReasonNotAnObject     = "JSON payload is not an object"
	ReasonUnrecognized    = "unrecognized JSON shape"
	ReasonDecodeFailed    = "JSON payload does not match its shape"
	ReasonLineTooLong     = "line exceeds maximum length"
	ReasonEmptyJSONMarker = "empty JSON payload"
)

// Classify maps one framed line to exactly one payload. It never fails:
// anything that cannot be interpreted becomes a ClassificationError or a RawLine.
//
// Dispatch order: JSON marker, plain-response marker, raw line.
func Classify(line string, now time.Time) model.Payload {
	switch {
	case strings.HasPrefix(line, model.JSONResponsePrefix):
		return classifyJSON(line, strings.TrimSpace(line[len(model.JSONResponsePrefix):]))
	case strings.HasPrefix(line, model.PlainResponsePrefix):
		return classifyPlain(line[len(model.PlainResponsePrefix):])
	default:
		return &model.RawLine{Text: line, ReceivedAt: now}
	}
}

func classifyPlain(text string) model.Payload {
	text = strings.TrimSpace(text)
	status := model.ResponseStatusInfo
	upper := strings.ToUpper(text)
	switch {
	case strings.HasPrefix(upper, "ERROR"):
		status = model.ResponseStatusError
	case strings.HasPrefix(upper, "SUCCESS"), upper == "OK":
		status = model.ResponseStatusSuccess
	}
	return &model.PlainResponse{Text: text, Status: status}
}

func classifyJSON(line, payload string) model.Payload {
	if payload == "" {
		return &model.ClassificationError{Text: line, Reason: ReasonEmptyJSONMarker}
	}

	dec := json.NewDecoder(strings.NewReader(payload))
	dec.UseNumber()

	var value interface{}
	if err := dec.Decode(&value); err != nil {
		return &model.ClassificationError{Text: line, Reason: fmt.Sprintf("%s: %v", ReasonInvalidJSON, err)}
	}
	if dec.More() {
		return &model.ClassificationError{Text: line, Reason: ReasonInvalidJSON + ": trailing data"}
	}

	obj, ok := value.(map[string]interface{})
	if !ok {
		return &model.ClassificationError{Text: line, Reason: ReasonNotAnObject}
	}

	for _, r := range rules {
		if !r.match(obj) {
			continue
		}
		p, err := r.build(obj, []byte(payload))
		if err != nil {
			return &model.ClassificationError{Text: line, Reason: fmt.Sprintf("%s (%s): %v", ReasonDecodeFailed, r.name, err)}
		}
		if ce, ok := p.(*model.ClassificationError); ok {
			ce.Text = line
		}
		return p
	}

	// unreachable while the fallback rule is last in the table
	return &model.ClassificationError{Text: line, Reason: ReasonUnrecognized}
}

// decodeShape fills a typed payload from raw JSON. A field whose value does not
// fit its Go type is left unset: the device is not strict about types and
// Fields keeps the raw values.
func decodeShape(raw []byte, target interface{}) error {
	err := json.Unmarshal(raw, target)
	if err == nil {
		return nil
	}

	var fields map[string]json.RawMessage
	if json.Unmarshal(raw, &fields) != nil {
		return err
	}

	// the aborted decode may have left a half-set field behind
	v := reflect.ValueOf(target).Elem()
	v.Set(reflect.Zero(v.Type()))

	for key, value := range fields {
		single, merr := json.Marshal(map[string]json.RawMessage{key: value})
		if merr != nil {
			continue
		}
		trial := reflect.New(v.Type()).Interface()
		if json.Unmarshal(single, trial) != nil {
			continue
		}
		_ = json.Unmarshal(single, target)
	}
	return nil
}
