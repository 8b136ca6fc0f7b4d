package actionlog

import (
	"errors"
	"testing"
)

// ---------------------------------------------------------------------------
// RenderPayload
// ---------------------------------------------------------------------------

func TestRenderPayload(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]any
		want    string
	}{
		{"empty", map[string]any{}, "{}"},
		{"nil", nil, "{}"},
		{
			"sorted keys",
			map[string]any{"name": "a server", "ip": "1.2.3.4", "info": "this all gets logged"},
			`{'info': 'this all gets logged', 'ip': '1.2.3.4', 'name': 'a server'}`,
		},
		{
			"nested objects sorted recursively",
			map[string]any{"b": map[string]any{"z": "1", "a": "2"}, "a": true},
			`{'a': True, 'b': {'a': '2', 'z': '1'}}`,
		},
		{
			"arrays and scalars",
			map[string]any{"list": []any{"x", float64(2), nil}, "n": float64(1.5)},
			`{'list': ['x', 2, None], 'n': 1.5}`,
		},
		{
			"quotes and escapes",
			map[string]any{"a": "it's", "b": `say "hi" it's`, "c": "line\nbreak", "d": `back\slash`, "e": false},
			`{'a': "it's", 'b': 'say "hi" it\'s', 'c': 'line\nbreak', 'd': 'back\\slash', 'e': False}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RenderPayload(tt.payload); got != tt.want {
				t.Errorf("RenderPayload() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRenderPayload_DeterministicAcrossDecodes(t *testing.T) {
	a, err := DecodeBody([]byte(`{"name":"vm","metadata":{"k2":"v2","k1":"v1"},"count":3}`))
	if err != nil {
		t.Fatalf("DecodeBody: %v", err)
	}
	b, err := DecodeBody([]byte(`{"count":3,"metadata":{"k1":"v1","k2":"v2"},"name":"vm"}`))
	if err != nil {
		t.Fatalf("DecodeBody: %v", err)
	}

	first := RenderPayload(a)
	for i := 0; i < 20; i++ {
		if got := RenderPayload(a); got != first {
			t.Fatalf("render %d = %q, want %q", i, got, first)
		}
	}
	if got := RenderPayload(b); got != first {
		t.Errorf("reordered payload renders %q, want %q", got, first)
	}
	if want := `{'count': 3, 'metadata': {'k1': 'v1', 'k2': 'v2'}, 'name': 'vm'}`; first != want {
		t.Errorf("RenderPayload = %q, want %q", first, want)
	}
}

// ---------------------------------------------------------------------------
// ExtractDetail
// ---------------------------------------------------------------------------

func mustDecode(t *testing.T, s string) map[string]any {
	t.Helper()
	body, err := DecodeBody([]byte(s))
	if err != nil {
		t.Fatalf("DecodeBody(%s): %v", s, err)
	}
	return body
}

func TestExtractDetail(t *testing.T) {
	tests := []struct {
		action Action
		body   string
		want   string
	}{
		{ActionCreate, `{"server":{"name":"a server","ip":"1.2.3.4","info":"this all gets logged"}}`, `{'info': 'this all gets logged', 'ip': '1.2.3.4', 'name': 'a server'}`},
		{ActionDelete, ``, ""},
		{ActionRootPassword, `{"changePassword":{"adminPass":"s3cret"}}`, ""},
		{ActionResize, `{"resize":{"flavorRef":"400"}}`, "New Flavor: 400"},
		{ActionResize, `{"resize":{"flavorRef":400}}`, "New Flavor: 400"},
		{ActionRebuild, `{"rebuild":{"imageRef":"img-1"}}`, "New Image: img-1"},
		{ActionReboot, `{"reboot":{"type":"hard"}}`, "Type: hard"},
		{ActionReboot, `{"reboot":{"type":"soft"}}`, "Type: soft"},
		{ActionVolumeSnapshotCreate, `{"createImage":{"name":"snap","metadata":{"b":"2","a":"1"}}}`, "Name: snap\nMetadata: {'a': '1', 'b': '2'}"},
		{ActionVolumeSnapshotCreate, `{"createImage":{"name":"snap"}}`, "Name: snap\nMetadata: {}"},
		{ActionConfirmResize, `{"confirmResize":null}`, ""},
		{ActionRevertResize, `{"revertResize":null}`, ""},
	}
	for _, tt := range tests {
		t.Run(string(tt.action), func(t *testing.T) {
			got, err := ExtractDetail(tt.action, mustDecode(t, tt.body), nil)
			if err != nil {
				t.Fatalf("ExtractDetail: %v", err)
			}
			if got != tt.want {
				t.Errorf("ExtractDetail(%s) = %q, want %q", tt.action, got, tt.want)
			}
		})
	}
}

func TestExtractDetail_MissingKeys(t *testing.T) {
	tests := []struct {
		action  Action
		body    string
		wantKey string
	}{
		{ActionCreate, `{}`, "server"},
		{ActionResize, `{"resize":{}}`, "flavorRef"},
		{ActionResize, `{"reboot":{"type":"hard"}}`, "resize"},
		{ActionRebuild, `{"rebuild":{"name":"x"}}`, "imageRef"},
		{ActionReboot, `{"reboot":{}}`, "type"},
		{ActionVolumeSnapshotCreate, `{"createImage":{"metadata":{}}}`, "name"},
		{ActionVolumeSnapshotCreate, `{"createImage":{"name":"x","metadata":"oops"}}`, "metadata"},
	}
	for _, tt := range tests {
		t.Run(string(tt.action)+"/"+tt.wantKey, func(t *testing.T) {
			got, err := ExtractDetail(tt.action, mustDecode(t, tt.body), nil)
			if err == nil {
				t.Fatalf("ExtractDetail = %q, want error", got)
			}
			if !errors.Is(err, ErrExtraction) {
				t.Errorf("error %v does not match ErrExtraction", err)
			}
			if errors.Is(err, ErrAppend) {
				t.Errorf("extraction error %v matches ErrAppend", err)
			}
			var ee *ExtractionError
			if !errors.As(err, &ee) {
				t.Fatalf("error %T is not *ExtractionError", err)
			}
			if ee.Key != tt.wantKey || ee.Action != tt.action {
				t.Errorf("ExtractionError = %+v, want key %q action %q", ee, tt.wantKey, tt.action)
			}
		})
	}
}

func TestExtractDetail_UnknownAction(t *testing.T) {
	if _, err := ExtractDetail(Action("migrate"), nil, nil); !errors.Is(err, ErrUnknownAction) {
		t.Errorf("err = %v, want ErrUnknownAction", err)
	}
}

func TestDecodeBody(t *testing.T) {
	if body, err := DecodeBody(nil); err != nil || body != nil {
		t.Errorf("DecodeBody(nil) = %v, %v; want nil, nil", body, err)
	}
	if body, err := DecodeBody([]byte("  \n")); err != nil || body != nil {
		t.Errorf("DecodeBody(whitespace) = %v, %v; want nil, nil", body, err)
	}
	if _, err := DecodeBody([]byte("{not json")); err == nil {
		t.Error("DecodeBody(invalid) = nil error, want error")
	}
}

func TestParseAction(t *testing.T) {
	for _, a := range Actions() {
		got, err := ParseAction(string(a))
		if err != nil || got != a {
			t.Errorf("ParseAction(%q) = %q, %v", a, got, err)
		}
	}
	if _, err := ParseAction("show"); !errors.Is(err, ErrUnknownAction) {
		t.Errorf("ParseAction(show) err = %v, want ErrUnknownAction", err)
	}
	if n := len(Actions()); n != 9 {
		t.Errorf("len(Actions()) = %d, want 9", n)
	}
}
