package llm

import (
	"encoding/json"
	"fmt"
	"math"
)

// ValidateParams checks a tool call's argument payload against the
// tool's declared schema before execution: the payload must be a JSON
// object, required fields must be present, and each known property must
// match its declared type. Violations are reported as KindInvalidParams
// so the dispatcher can return them to the model instead of failing the
// turn.
func ValidateParams(schema map[string]interface{}, args json.RawMessage) error {
	// An absent or empty payload stands for the empty object.
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(args, &payload); err != nil {
		return NewErrorf(KindInvalidParams, "arguments are not a JSON object: %v", err)
	}

	if schema == nil {
		return nil
	}

	for _, name := range schemaRequired(schema) {
		if _, ok := payload[name]; !ok {
			return NewErrorf(KindInvalidParams, "missing required parameter: %s", name)
		}
	}

	properties, ok := schema["properties"].(map[string]interface{})
	if !ok {
		return nil
	}
	for name, value := range payload {
		propSchema, ok := properties[name].(map[string]interface{})
		if !ok {
			continue // unknown fields are the tool's business
		}
		declared, ok := propSchema["type"].(string)
		if !ok {
			continue
		}
		if err := checkType(name, declared, value); err != nil {
			return err
		}
	}
	return nil
}

func checkType(name, declared string, value interface{}) error {
	if value == nil {
		return nil
	}
	ok := false
	switch declared {
	case "string":
		_, ok = value.(string)
	case "boolean":
		_, ok = value.(bool)
	case "number":
		_, ok = value.(float64)
	case "integer":
		if f, isNum := value.(float64); isNum {
			ok = f == math.Trunc(f)
		}
	case "array":
		_, ok = value.([]interface{})
	case "object":
		_, ok = value.(map[string]interface{})
	default:
		ok = true
	}
	if !ok {
		return NewErrorf(KindInvalidParams, "parameter %s: expected %s, got %s", name, declared, jsonTypeName(value))
	}
	return nil
}

func jsonTypeName(value interface{}) string {
	switch value.(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64:
		return "number"
	case []interface{}:
		return "array"
	case map[string]interface{}:
		return "object"
	default:
		return fmt.Sprintf("%T", value)
	}
}
