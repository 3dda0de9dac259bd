// internal/classifier/rules.go
package classifier

import (
	"encoding/json"
	"strconv"

	"device-session/internal/model"
)

// rule is one predicate->constructor pair of the JSON dispatch table
type rule struct {
	name  string
	match func(obj map[string]interface{}) bool
	build func(obj map[string]interface{}, raw []byte) (model.Payload, error)
}

// rules are evaluated top to bottom; the first match wins. The last rule always
// matches so dispatch is total.
var rules = []rule{
	{
		name: "config_schema",
		match: func(obj map[string]interface{}) bool {
			return hasAll(obj, model.SectionNetworkIdentity, model.SectionSystemBehavior) && hasDefaults(obj)
		},
		build: buildConfigSchema,
	},
	{
		name: "current_config",
		match: func(obj map[string]interface{}) bool {
			return hasAll(obj, model.SectionNetworkIdentity, model.SectionSystemBehavior)
		},
		build: func(obj map[string]interface{}, _ []byte) (model.Payload, error) {
			return &model.CurrentConfig{Values: normalize(obj).(map[string]interface{})}, nil
		},
	},
	{
		name:  "network_status",
		match: func(obj map[string]interface{}) bool { return hasAll(obj, "hid", "bit_index") },
		build: func(obj map[string]interface{}, raw []byte) (model.Payload, error) {
			p := &model.NetworkStatus{}
			if err := decodeShape(raw, p); err != nil {
				return nil, err
			}
			p.Fields = normalize(obj).(map[string]interface{})
			return p, nil
		},
	},
	{
		name:  "network_stats",
		match: func(obj map[string]interface{}) bool { return hasAny(obj, "messages_sent", "signal_strength") },
		build: func(obj map[string]interface{}, raw []byte) (model.Payload, error) {
			p := &model.NetworkStats{}
			if err := decodeShape(raw, p); err != nil {
				return nil, err
			}
			p.Fields = normalize(obj).(map[string]interface{})
			return p, nil
		},
	},
	{
		name:  "io_status",
		match: func(obj map[string]interface{}) bool { return hasAll(obj, "input_states", "output_states") },
		build: func(obj map[string]interface{}, raw []byte) (model.Payload, error) {
			p := &model.IOStatus{}
			if err := decodeShape(raw, p); err != nil {
				return nil, err
			}
			p.Fields = normalize(obj).(map[string]interface{})
			return p, nil
		},
	},
	{
		name:  "device_data",
		match: func(obj map[string]interface{}) bool { return hasAny(obj, "memory_states", "analog_value1") },
		build: func(obj map[string]interface{}, raw []byte) (model.Payload, error) {
			p := &model.DeviceData{}
			if err := decodeShape(raw, p); err != nil {
				return nil, err
			}
			p.Fields = normalize(obj).(map[string]interface{})
			return p, nil
		},
	},
	{
		name:  "device_info",
		match: func(obj map[string]interface{}) bool { return hasAll(obj, "chip", "version") },
		build: func(obj map[string]interface{}, raw []byte) (model.Payload, error) {
			p := &model.DeviceInfo{}
			if err := decodeShape(raw, p); err != nil {
				return nil, err
			}
			p.Fields = normalize(obj).(map[string]interface{})
			return p, nil
		},
	},
	{
		name:  "fallback",
		match: func(map[string]interface{}) bool { return true },
		build: func(_ map[string]interface{}, raw []byte) (model.Payload, error) {
			return &model.ClassificationError{Text: string(raw), Reason: ReasonUnrecognized}, nil
		},
	},
}

// RuleNames returns the dispatch order, for diagnostics and docs.
func RuleNames() []string {
	names := make([]string, len(rules))
	for i, r := range rules {
		names[i] = r.name
	}
	return names
}

func hasAll(obj map[string]interface{}, keys ...string) bool {
	for _, k := range keys {
		if _, ok := obj[k]; !ok {
			return false
		}
	}
	return true
}

func hasAny(obj map[string]interface{}, keys ...string) bool {
	for _, k := range keys {
		if _, ok := obj[k]; ok {
			return true
		}
	}
	return false
}

// hasDefaults reports whether any field of the two config sections is an object with a "default" key.
func hasDefaults(obj map[string]interface{}) bool {
	for _, section := range []string{model.SectionNetworkIdentity, model.SectionSystemBehavior} {
		fields, ok := obj[section].(map[string]interface{})
		if !ok {
			continue
		}
		for _, field := range fields {
			if desc, ok := field.(map[string]interface{}); ok {
				if _, ok := desc["default"]; ok {
					return true
				}
			}
		}
	}
	return false
}

func buildConfigSchema(obj map[string]interface{}, _ []byte) (model.Payload, error) {
	schema := normalize(obj).(map[string]interface{})
	defaults := make(map[string]map[string]interface{})

	for section, v := range schema {
		fields, ok := v.(map[string]interface{})
		if !ok {
			continue
		}
		values := make(map[string]interface{})
		for name, f := range fields {
			desc, ok := f.(map[string]interface{})
			if !ok {
				continue
			}
			if def, ok := desc["default"]; ok {
				values[name] = def
			}
		}
		defaults[section] = values
	}

	return &model.ConfigSchema{Schema: schema, Defaults: defaults}, nil
}

// normalize converts json.Number leaves into int64 or float64 so payloads marshal
// and compare as plain values.
func normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, e := range t {
			out[k] = normalize(e)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	case json.Number:
		if i, err := strconv.ParseInt(t.String(), 10, 64); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	default:
		return v
	}
}
