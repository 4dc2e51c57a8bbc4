// Package server implements the MCP (Model Context Protocol) control surface
// of the shadow detector.
//
// The server speaks JSON-RPC 2.0 over stdio, one message per line. An MCP
// client uses it to watch the detected shadows, tune the detection
// parameters and calibrate the projection quad while the pipeline runs.
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
// Camera:
//   - camera_devices: List devices and the one streaming
//   - camera_select: Reopen the pipeline on another device
//
// Detection results:
//   - shadow_status: Pipeline and calibration state
//   - shadow_list: Shadow polygons of the latest frame in world space
//   - shadow_view: One pipeline image as base64 PNG
//   - frame_sample: Pixel colors of a pipeline image
//
// Parameters:
//   - params_get, params_set: Read or change detection parameters
//
// Calibration:
//   - calibration_enter, calibration_accept, calibration_cancel
//   - calibration_select: Choose the corner to drag
//   - calibration_pointer: Drive the corner with down/move/up/cancel
//   - calibration_status: Corners and drag state
//
// Tools that change state run on the pipeline's tick goroutine through
// pipeline.Runner.Do, so a change never lands in the middle of a frame.
//
// # Notifications
//
// Pipeline lifecycle events are pushed to the client as
// "notifications/pipeline" messages carrying the event name ("init_done" or
// "first_frame") and the frame size.
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with:
//   - code: -32000 (tool execution failure) or standard JSON-RPC codes
//   - message: Human-readable error description
//   - data: The Go error string
package server
