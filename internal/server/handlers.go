package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ironsheep/shadow-detector/internal/camera"
	"github.com/ironsheep/shadow-detector/internal/detection"
	"github.com/ironsheep/shadow-detector/internal/imaging"
	"github.com/ironsheep/shadow-detector/internal/params"
	"github.com/ironsheep/shadow-detector/internal/pipeline"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "shadow_list", "params_set").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000.
func (s *Server) handleToolsCall(ctx context.Context, req *MCPRequest) *MCPResponse {
	var p ToolCallParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}
	if len(bytes.TrimSpace(p.Arguments)) == 0 || string(p.Arguments) == "null" {
		p.Arguments = json.RawMessage("{}")
	}

	result, err := s.executeTool(ctx, p.Name, p.Arguments)
	if err != nil {
		s.logger.Debug("tool failed", "tool", p.Name, "error", err)
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
//
// Handlers that change detector, parameter or calibration state run on the
// tick goroutine through Runner.Do; read-only handlers use the snapshots the
// detector publishes.
func (s *Server) executeTool(ctx context.Context, name string, args json.RawMessage) (interface{}, error) {
	switch name {
	// Camera
	case "camera_devices":
		return s.handleCameraDevices()
	case "camera_select":
		return s.handleCameraSelect(ctx, args)

	// Detection results
	case "shadow_status":
		return s.detector.Status(), nil
	case "shadow_list":
		return s.handleShadowList()
	case "shadow_view":
		return s.handleShadowView(args)
	case "frame_sample":
		return s.handleFrameSample(args)

	// Parameters
	case "params_get":
		return s.handleParamsGet(args)
	case "params_set":
		return s.handleParamsSet(ctx, args)

	// Calibration
	case "calibration_enter":
		return s.calibrationCommand(ctx, s.calib.Enter)
	case "calibration_accept":
		return s.calibrationCommand(ctx, s.calib.Accept)
	case "calibration_cancel":
		return s.calibrationCommand(ctx, s.calib.Cancel)
	case "calibration_select":
		return s.handleCalibrationSelect(ctx, args)
	case "calibration_pointer":
		return s.handleCalibrationPointer(ctx, args)
	case "calibration_status":
		return s.calibrationStatus(), nil

	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// Panics are suppressed; on marshal failure, returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// decodeArgs unmarshals tool arguments, rejecting unknown fields.
func decodeArgs(args json.RawMessage, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(args))
	dec.DisallowUnknownFields()
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

// === Camera Handlers ===

type cameraDevicesResult struct {
	Devices []camera.DeviceDescriptor `json:"devices"`
	Current string                    `json:"current,omitempty"`
}

func (s *Server) handleCameraDevices() (interface{}, error) {
	devs, err := s.detector.Devices()
	if err != nil {
		return nil, err
	}
	if devs == nil {
		devs = []camera.DeviceDescriptor{}
	}
	return cameraDevicesResult{Devices: devs, Current: s.detector.Status().Device}, nil
}

type cameraSelectArgs struct {
	Selector string `json:"selector"`
}

func (s *Server) handleCameraSelect(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a cameraSelectArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if err := s.runner.Do(ctx, func() error {
		return s.detector.SelectDevice(a.Selector)
	}); err != nil {
		return nil, err
	}
	return s.detector.Status(), nil
}

// === Detection Result Handlers ===

type shadowListResult struct {
	Sequence    uint64             `json:"sequence"`
	Width       int                `json:"width"`
	Height      int                `json:"height"`
	ProcessedAt string             `json:"processed_at,omitempty"`
	Shadows     []detection.Shadow `json:"shadows"`
}

func (s *Server) handleShadowList() (interface{}, error) {
	v := s.detector.View()
	if v == nil {
		w, h := s.detector.FrameSize()
		return shadowListResult{Width: w, Height: h, Shadows: []detection.Shadow{}}, nil
	}
	shadows := v.Shadows
	if shadows == nil {
		shadows = []detection.Shadow{}
	}
	return shadowListResult{
		Sequence:    v.Sequence,
		Width:       v.Width,
		Height:      v.Height,
		ProcessedAt: v.ProcessedAt.Format(time.RFC3339Nano),
		Shadows:     shadows,
	}, nil
}

type shadowViewArgs struct {
	Texture string  `json:"texture"`
	Scale   float64 `json:"scale"`
}

func (s *Server) handleShadowView(args json.RawMessage) (interface{}, error) {
	var a shadowViewArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Scale == 0 {
		a.Scale = s.previewScale
	}
	v := s.detector.View()
	if v == nil {
		return nil, pipeline.ErrNotStarted
	}
	img, err := v.Texture(a.Texture)
	if err != nil {
		return nil, err
	}
	return imaging.EncodeTexture(a.Texture, img, a.Scale)
}

type frameSampleArgs struct {
	Texture string                 `json:"texture"`
	Points  []imaging.LabeledPoint `json:"points"`
}

func (s *Server) handleFrameSample(args json.RawMessage) (interface{}, error) {
	var a frameSampleArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Texture == "" {
		a.Texture = pipeline.TextureRectified
	}
	v := s.detector.View()
	if v == nil {
		return nil, pipeline.ErrNotStarted
	}
	img, err := v.Texture(a.Texture)
	if err != nil {
		return nil, err
	}
	if img == nil {
		return nil, fmt.Errorf("texture %q is not available", a.Texture)
	}
	return imaging.SampleColorsMulti(img, a.Points)
}

// === Parameter Handlers ===

type paramsGetArgs struct {
	Field string `json:"field"`
}

type fieldValue struct {
	Field string      `json:"field"`
	Value interface{} `json:"value"`
}

func (s *Server) handleParamsGet(args json.RawMessage) (interface{}, error) {
	var a paramsGetArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Field == "" {
		return s.store.Params(), nil
	}
	v, err := s.store.Get(a.Field)
	if err != nil {
		return nil, err
	}
	return fieldValue{Field: a.Field, Value: v}, nil
}

type paramsSetArgs struct {
	Field string      `json:"field"`
	Value interface{} `json:"value"`
}

func (s *Server) handleParamsSet(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a paramsSetArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Value == nil {
		return nil, fmt.Errorf("%w: %s requires a value", params.ErrInvalidParameter, a.Field)
	}

	var stored interface{}
	if err := s.runner.Do(ctx, func() error {
		v, err := s.store.Set(a.Field, a.Value)
		stored = v
		return err
	}); err != nil {
		return nil, err
	}
	return fieldValue{Field: a.Field, Value: stored}, nil
}

// === Calibration Handlers ===

type calibrationStatusResult struct {
	State    string                          `json:"state"`
	Selected int                             `json:"selected_corner"`
	Dragging bool                            `json:"dragging"`
	Corners  [params.NumCorners]params.Point `json:"corners"`
	Saved    [params.NumCorners]params.Point `json:"saved_corners"`
}

func (s *Server) calibrationStatus() calibrationStatusResult {
	return calibrationStatusResult{
		State:    s.calib.State().String(),
		Selected: s.calib.Selected(),
		Dragging: s.calib.Dragging(),
		Corners:  s.calib.Points(),
		Saved:    s.store.Points(),
	}
}

func (s *Server) calibrationCommand(ctx context.Context, fn func() error) (interface{}, error) {
	if err := s.runner.Do(ctx, fn); err != nil {
		return nil, err
	}
	return s.calibrationStatus(), nil
}

type calibrationSelectArgs struct {
	Index *int `json:"index"`
}

func (s *Server) handleCalibrationSelect(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a calibrationSelectArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Index == nil {
		return nil, errors.New("index is required")
	}
	i := *a.Index
	return s.calibrationCommand(ctx, func() error { return s.calib.Select(i) })
}

type calibrationPointerArgs struct {
	Action string  `json:"action"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Space  string  `json:"space"`
}

func (s *Server) handleCalibrationPointer(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a calibrationPointerArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}

	p := params.Point{X: a.X, Y: a.Y}
	switch a.Space {
	case "", "pixel":
	case "screen":
		w, h := s.detector.FrameSize()
		if w == 0 || h == 0 {
			return nil, pipeline.ErrNotStarted
		}
		p = s.detector.Mapper().ScreenToPixel(detection.Vec2{X: a.X, Y: a.Y}, w, h)
	default:
		return nil, fmt.Errorf("unknown coordinate space: %s", a.Space)
	}

	var fn func() error
	switch a.Action {
	case "down":
		fn = func() error { return s.calib.PointerDown(p) }
	case "move":
		fn = func() error { return s.calib.PointerMove(p) }
	case "up":
		fn = s.calib.PointerUp
	case "cancel":
		fn = s.calib.CancelDrag
	default:
		return nil, fmt.Errorf("unknown pointer action: %q", a.Action)
	}
	return s.calibrationCommand(ctx, fn)
}
