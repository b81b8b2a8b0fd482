package channelsync

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestRedactValueNestedStructures(t *testing.T) {
	input := map[string]any{
		"guest": map[string]any{
			"name":     "Jane Roe",
			"password": "hunter2",
		},
		"payment": map[string]any{
			"credit_card_number": "4111111111111111",
			"amount":             120.5,
		},
		"notes": []any{
			"late arrival",
			map[string]any{"apiKey": "abc123"},
		},
	}

	out, ok := RedactValue(input, defaultSensitivePatterns).(map[string]any)
	if !ok {
		t.Fatalf("expected map result, got %T", out)
	}

	guest := out["guest"].(map[string]any)
	if guest["password"] != RedactedMarker {
		t.Errorf("password not redacted: %v", guest["password"])
	}
	if guest["name"] != "Jane Roe" {
		t.Errorf("plain field mutated: %v", guest["name"])
	}

	payment := out["payment"].(map[string]any)
	if payment["credit_card_number"] != RedactedMarker {
		t.Errorf("credit card key not redacted: %v", payment["credit_card_number"])
	}
	if payment["amount"] != 120.5 {
		t.Errorf("numeric value mutated: %v", payment["amount"])
	}

	notes := out["notes"].([]any)
	inner := notes[1].(map[string]any)
	if inner["apiKey"] != RedactedMarker {
		t.Errorf("nested apiKey not redacted: %v", inner["apiKey"])
	}
}

func TestRedactValueIdempotent(t *testing.T) {
	input := map[string]any{
		"refreshToken": "rt-secret-value",
		"guest":        map[string]any{"secret_question": "pet name"},
	}

	once := RedactValue(input, defaultSensitivePatterns)
	twice := RedactValue(once, defaultSensitivePatterns)

	if !reflect.DeepEqual(once, twice) {
		t.Errorf("second redaction changed output:\nonce:  %v\ntwice: %v", once, twice)
	}
}

func TestRedactValueStringContentMatch(t *testing.T) {
	out := RedactValue([]any{"my token is abc", "clean value"}, defaultSensitivePatterns).([]any)
	if out[0] != RedactedMarker {
		t.Errorf("string containing pattern not redacted: %v", out[0])
	}
	if out[1] != "clean value" {
		t.Errorf("clean string mutated: %v", out[1])
	}
}

func TestRedactJSONInvalidPayload(t *testing.T) {
	out := RedactJSON([]byte("{not json"))
	var s string
	if err := json.Unmarshal(out, &s); err != nil || s != RedactedMarker {
		t.Errorf("invalid JSON should collapse to the marker, got %s", out)
	}
}

func TestRedactJSONEmpty(t *testing.T) {
	if out := RedactJSON(nil); out != nil {
		t.Errorf("empty input should stay nil, got %s", out)
	}
}
