package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image/png"
	"testing"

	"github.com/ironsheep/shadow-detector/internal/camera"
	"github.com/ironsheep/shadow-detector/internal/imaging"
	"github.com/ironsheep/shadow-detector/internal/params"
	"github.com/ironsheep/shadow-detector/internal/pipeline"
)

// callTool sends a tools/call request and returns the response.
func (e *testEnv) callTool(t *testing.T, name string, args interface{}) *MCPResponse {
	t.Helper()

	p := map[string]interface{}{"name": name}
	if args != nil {
		p["arguments"] = args
	}
	paramsJSON, _ := json.Marshal(p)

	resp := e.server.handleRequest(context.Background(), &MCPRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "tools/call",
		Params:  paramsJSON,
	})
	if resp == nil {
		t.Fatal("handleRequest returned nil")
	}
	return resp
}

// mustCall calls a tool that should succeed and decodes its result into v.
func (e *testEnv) mustCall(t *testing.T, name string, args interface{}, v interface{}) {
	t.Helper()

	resp := e.callTool(t, name, args)
	if resp.Error != nil {
		t.Fatalf("%s: unexpected error: %s (%v)", name, resp.Error.Message, resp.Error.Data)
	}
	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatalf("%s: result should be a map", name)
	}
	content, ok := result["content"].([]map[string]interface{})
	if !ok || len(content) != 1 {
		t.Fatalf("%s: content should hold one item", name)
	}
	if content[0]["type"] != "text" {
		t.Errorf("%s: content type: got %v, want text", name, content[0]["type"])
	}
	if v == nil {
		return
	}
	if err := json.Unmarshal([]byte(content[0]["text"].(string)), v); err != nil {
		t.Fatalf("%s: decode result: %v", name, err)
	}
}

// mustFail calls a tool that should fail with a tool execution error.
func (e *testEnv) mustFail(t *testing.T, name string, args interface{}) {
	t.Helper()

	resp := e.callTool(t, name, args)
	if resp.Error == nil {
		t.Fatalf("%s %v: expected an error", name, args)
	}
	if resp.Error.Code != -32000 {
		t.Errorf("%s: error code: got %d, want -32000", name, resp.Error.Code)
	}
}

func TestHandleToolsCall_InvalidParams(t *testing.T) {
	e := newTestEnv(t)
	resp := e.server.handleRequest(context.Background(), &MCPRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "tools/call",
		Params:  json.RawMessage(`"not an object"`),
	})
	if resp.Error == nil || resp.Error.Code != -32602 {
		t.Errorf("error: got %+v, want code -32602", resp.Error)
	}
}

func TestHandleToolsCall_UnknownTool(t *testing.T) {
	e := newTestEnv(t)
	e.mustFail(t, "image_ocr_full", map[string]interface{}{})
}

func TestHandleToolsCall_MissingArguments(t *testing.T) {
	e := newTestEnv(t)
	var p params.DetectionParameters
	e.mustCall(t, "params_get", nil, &p)
	if p.Threshold != 128 {
		t.Errorf("threshold: got %d, want 128", p.Threshold)
	}
}

func TestHandleToolsCall_UnknownArgument(t *testing.T) {
	e := newTestEnv(t)
	e.mustFail(t, "params_get", map[string]interface{}{"path": "/tmp/x.png"})
}

func TestHandleToolsCall_CameraDevices(t *testing.T) {
	e := newTestEnv(t,
		camera.DeviceDescriptor{Name: "cam"},
		camera.DeviceDescriptor{Name: "depth", Kind: camera.ColorAndDepth},
	)

	var got cameraDevicesResult
	e.mustCall(t, "camera_devices", nil, &got)
	if len(got.Devices) != 2 {
		t.Fatalf("devices: got %d, want 2", len(got.Devices))
	}
	if got.Devices[1].Name != "depth" || got.Devices[1].Kind != camera.ColorAndDepth {
		t.Errorf("device 1: got %+v", got.Devices[1])
	}
	if got.Current != "cam" {
		t.Errorf("current: got %q, want cam", got.Current)
	}
}

func TestHandleToolsCall_CameraDevices_None(t *testing.T) {
	e := newTestEnv(t)

	var got cameraDevicesResult
	e.mustCall(t, "camera_devices", nil, &got)
	if got.Devices == nil || len(got.Devices) != 0 || got.Current != "" {
		t.Errorf("got %+v, want an empty list", got)
	}
	e.mustFail(t, "camera_select", map[string]interface{}{})
}

func TestHandleToolsCall_CameraSelect(t *testing.T) {
	e := newTestEnv(t, camera.DeviceDescriptor{Name: "cam"}, camera.DeviceDescriptor{Name: "cam2"})

	var st pipeline.Status
	e.mustCall(t, "camera_select", map[string]interface{}{"selector": "1"}, &st)
	if st.Device != "cam2" || !st.Playing {
		t.Errorf("status: got %+v, want cam2 playing", st)
	}
	e.mustCall(t, "camera_select", map[string]interface{}{"selector": "cam"}, &st)
	if st.Device != "cam" {
		t.Errorf("device: got %q, want cam", st.Device)
	}
}

func TestHandleToolsCall_ShadowStatus(t *testing.T) {
	e := newTestEnv(t, camera.DeviceDescriptor{Name: "cam"})

	var st pipeline.Status
	e.mustCall(t, "shadow_status", nil, &st)
	if st.Device != "cam" || st.Initialized || st.Calibration != "inactive" {
		t.Errorf("status before frames: %+v", st)
	}

	e.waitForView(t)
	e.mustCall(t, "shadow_status", nil, &st)
	if !st.Initialized || !st.FirstFrame || st.Width != testFrameSize || st.Shadows != 1 || !st.HasTransform {
		t.Errorf("status after frames: %+v", st)
	}
}

func TestHandleToolsCall_ShadowList(t *testing.T) {
	e := newTestEnv(t, camera.DeviceDescriptor{Name: "cam"})

	var got shadowListResult
	e.mustCall(t, "shadow_list", nil, &got)
	if got.Shadows == nil || len(got.Shadows) != 0 {
		t.Errorf("shadows before frames: got %v, want empty", got.Shadows)
	}

	e.waitForView(t)
	e.mustCall(t, "shadow_list", nil, &got)
	if len(got.Shadows) != 1 {
		t.Fatalf("shadows: got %d, want 1", len(got.Shadows))
	}
	if got.Shadows[0].Area != 361 {
		t.Errorf("area: got %v, want 361", got.Shadows[0].Area)
	}
	if got.Sequence == 0 || got.ProcessedAt == "" || got.Width != testFrameSize {
		t.Errorf("frame info: %+v", got)
	}
}

func TestHandleToolsCall_ShadowView(t *testing.T) {
	e := newTestEnv(t, camera.DeviceDescriptor{Name: "cam"})
	e.mustFail(t, "shadow_view", map[string]interface{}{"texture": "mask"})

	e.waitForView(t)

	tests := []struct {
		name    string
		args    map[string]interface{}
		wantW   int
		wantErr bool
	}{
		{"mask default scale", map[string]interface{}{"texture": "mask"}, testFrameSize, false},
		{"raw half scale", map[string]interface{}{"texture": "raw", "scale": 0.5}, testFrameSize / 2, false},
		{"rectified", map[string]interface{}{"texture": "rectified"}, testFrameSize, false},
		{"unknown texture", map[string]interface{}{"texture": "depth"}, 0, true},
		{"missing texture", map[string]interface{}{}, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.wantErr {
				e.mustFail(t, "shadow_view", tt.args)
				return
			}
			var tex imaging.Texture
			e.mustCall(t, "shadow_view", tt.args, &tex)
			if tex.Width != tt.wantW || tex.MimeType != "image/png" {
				t.Errorf("texture: got %dx%d %s", tex.Width, tex.Height, tex.MimeType)
			}
			data, err := base64.StdEncoding.DecodeString(tex.ImageBase64)
			if err != nil {
				t.Fatalf("base64: %v", err)
			}
			img, err := png.Decode(bytes.NewReader(data))
			if err != nil {
				t.Fatalf("png: %v", err)
			}
			if img.Bounds().Dx() != tt.wantW {
				t.Errorf("decoded width: got %d, want %d", img.Bounds().Dx(), tt.wantW)
			}
		})
	}
}

func TestHandleToolsCall_FrameSample(t *testing.T) {
	e := newTestEnv(t, camera.DeviceDescriptor{Name: "cam"})
	e.waitForView(t)

	var got []imaging.LabeledColorResult
	e.mustCall(t, "frame_sample", map[string]interface{}{
		"points": []map[string]interface{}{
			{"x": 5, "y": 5, "label": "shadow"},
			{"x": 30, "y": 30, "label": "lit"},
		},
	}, &got)
	if len(got) != 2 {
		t.Fatalf("samples: got %d, want 2", len(got))
	}
	if got[0].Label != "shadow" || got[0].Color.Hex != "#000000" {
		t.Errorf("shadow sample: got %+v", got[0])
	}
	if got[1].Color.Luma != 255 {
		t.Errorf("lit luma: got %d, want 255", got[1].Color.Luma)
	}

	e.mustCall(t, "frame_sample", map[string]interface{}{
		"texture": "mask",
		"points":  []map[string]interface{}{{"x": 5, "y": 5}},
	}, &got)
	if got[0].Color.Luma != 255 {
		t.Errorf("mask at shadow: got luma %d, want 255", got[0].Color.Luma)
	}

	e.mustFail(t, "frame_sample", map[string]interface{}{
		"points": []map[string]interface{}{{"x": testFrameSize, "y": 0}},
	})
}

func TestHandleToolsCall_ParamsGet(t *testing.T) {
	e := newTestEnv(t)

	var fv fieldValue
	e.mustCall(t, "params_get", map[string]interface{}{"field": "useApprox"}, &fv)
	if fv.Value != true {
		t.Errorf("useApprox: got %v, want true", fv.Value)
	}
	e.mustFail(t, "params_get", map[string]interface{}{"field": "sharpness"})
}

func TestHandleToolsCall_ParamsSet(t *testing.T) {
	e := newTestEnv(t)

	tests := []struct {
		name    string
		field   string
		value   interface{}
		want    interface{}
		wantErr bool
	}{
		{"threshold in range", "threshold", 90, float64(90), false},
		{"threshold clamped", "threshold", 300, float64(255), false},
		{"even blur steps down", "gaussian", 4, float64(3), false},
		{"color shift clamped", "r", -500, float64(-255), false},
		{"epsilon", "epsilon", 0.02, 0.02, false},
		{"boolean", "useApprox", false, false, false},
		{"boolean expects bool", "useApprox", "yes", nil, true},
		{"number expects number", "threshold", "high", nil, true},
		{"unknown field", "sharpness", 3, nil, true},
		{"missing value", "threshold", nil, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := map[string]interface{}{"field": tt.field}
			if tt.value != nil {
				args["value"] = tt.value
			}
			if tt.wantErr {
				e.mustFail(t, "params_set", args)
				return
			}
			var fv fieldValue
			e.mustCall(t, "params_set", args, &fv)
			if fv.Value != tt.want {
				t.Errorf("stored: got %v, want %v", fv.Value, tt.want)
			}
			if got, _ := e.store.Get(tt.field); got == nil {
				t.Errorf("store has no value for %s", tt.field)
			}
		})
	}

	if p := e.store.Params(); p.Threshold != 255 || p.BlurKernelSize != 3 || p.SimplifyContours {
		t.Errorf("store params: %+v", p)
	}
}

func TestHandleToolsCall_CalibrationFlow(t *testing.T) {
	e := newTestEnv(t, camera.DeviceDescriptor{Name: "cam"})
	e.waitForView(t)

	var st calibrationStatusResult
	e.mustCall(t, "calibration_enter", nil, &st)
	if st.State != "calibrating" || st.Selected != 0 {
		t.Fatalf("after enter: %+v", st)
	}
	e.mustFail(t, "calibration_enter", nil)

	e.mustCall(t, "calibration_select", map[string]interface{}{"index": 2}, &st)
	if st.Selected != 2 {
		t.Errorf("selected: got %d, want 2", st.Selected)
	}

	e.mustCall(t, "calibration_pointer", map[string]interface{}{"action": "down", "x": 10, "y": 10}, &st)
	if !st.Dragging {
		t.Error("down should start a drag")
	}
	e.mustCall(t, "calibration_pointer", map[string]interface{}{"action": "move", "x": 12, "y": 30}, &st)
	if st.Corners[2] != (params.Point{X: 12, Y: 30}) {
		t.Errorf("working corner: got %+v", st.Corners[2])
	}
	if st.Saved[2] == st.Corners[2] {
		t.Error("the drag should not be stored before up")
	}
	e.mustCall(t, "calibration_pointer", map[string]interface{}{"action": "up"}, &st)
	if st.Dragging || st.Selected != 3 || st.Saved[2] != (params.Point{X: 12, Y: 30}) {
		t.Errorf("after up: %+v", st)
	}

	e.mustCall(t, "calibration_accept", nil, &st)
	if st.State != "inactive" {
		t.Errorf("state: got %s, want inactive", st.State)
	}
	if p, _ := e.store.Point(2); p != (params.Point{X: 12, Y: 30}) {
		t.Errorf("stored corner: got %+v", p)
	}
}

func TestHandleToolsCall_CalibrationCancel(t *testing.T) {
	e := newTestEnv(t, camera.DeviceDescriptor{Name: "cam"})
	e.waitForView(t)
	before := e.store.Points()

	e.mustCall(t, "calibration_enter", nil, nil)
	e.mustCall(t, "params_set", map[string]interface{}{"field": "threshold", "value": 10}, nil)
	e.mustCall(t, "calibration_pointer", map[string]interface{}{"action": "down", "x": 7, "y": 7}, nil)
	e.mustCall(t, "calibration_pointer", map[string]interface{}{"action": "up"}, nil)

	var st calibrationStatusResult
	e.mustCall(t, "calibration_cancel", nil, &st)
	if st.State != "inactive" {
		t.Errorf("state: got %s", st.State)
	}
	if e.store.Points() != before {
		t.Errorf("corners: got %v, want %v", e.store.Points(), before)
	}
	if e.store.Params().Threshold != 128 {
		t.Errorf("threshold: got %d, want 128", e.store.Params().Threshold)
	}
}

func TestHandleToolsCall_CalibrationPointerScreenSpace(t *testing.T) {
	e := newTestEnv(t, camera.DeviceDescriptor{Name: "cam"})
	e.waitForView(t)
	e.mustCall(t, "calibration_enter", nil, nil)

	// The screen matches the frame size, so only Y flips.
	var st calibrationStatusResult
	e.mustCall(t, "calibration_pointer", map[string]interface{}{
		"action": "down", "x": 10, "y": 30, "space": "screen",
	}, &st)
	if st.Corners[0] != (params.Point{X: 10, Y: 10}) {
		t.Errorf("corner: got %+v, want {10 10}", st.Corners[0])
	}
}

func TestHandleToolsCall_CalibrationErrors(t *testing.T) {
	e := newTestEnv(t, camera.DeviceDescriptor{Name: "cam"})

	tests := []struct {
		name string
		tool string
		args map[string]interface{}
	}{
		{"pointer while inactive", "calibration_pointer", map[string]interface{}{"action": "down", "x": 1, "y": 1}},
		{"accept while inactive", "calibration_accept", nil},
		{"select while inactive", "calibration_select", map[string]interface{}{"index": 1}},
		{"unknown action", "calibration_pointer", map[string]interface{}{"action": "wheel"}},
		{"unknown space", "calibration_pointer", map[string]interface{}{"action": "down", "space": "world"}},
		{"screen space before init", "calibration_pointer", map[string]interface{}{"action": "down", "space": "screen"}},
		{"missing index", "calibration_select", map[string]interface{}{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e.mustFail(t, tt.tool, tt.args)
		})
	}

	var st calibrationStatusResult
	e.mustCall(t, "calibration_status", nil, &st)
	if st.State != "inactive" {
		t.Errorf("state: got %s", st.State)
	}

	e.mustCall(t, "calibration_enter", nil, nil)
	e.mustFail(t, "calibration_select", map[string]interface{}{"index": 4})
}

func TestExecuteTool_AllTools(t *testing.T) {
	e := newTestEnv(t)

	// Every advertised tool must be routed; only unknown names report
	// "unknown tool".
	for _, tool := range GetToolDefinitions() {
		_, err := e.server.executeTool(context.Background(), tool.Name, json.RawMessage(`{}`))
		if err != nil && err.Error() == "unknown tool: "+tool.Name {
			t.Errorf("%s is not routed", tool.Name)
		}
	}
}

func TestExecuteTool_InvalidJSON(t *testing.T) {
	e := newTestEnv(t)
	_, err := e.server.executeTool(context.Background(), "params_set", json.RawMessage(`{invalid`))
	if err == nil {
		t.Error("expected error for invalid JSON")
	}
}
