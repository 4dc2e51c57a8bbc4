package server

import "github.com/ironsheep/shadow-detector/internal/pipeline"

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

func objectSchema(props map[string]interface{}, required ...string) map[string]interface{} {
	s := map[string]interface{}{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func prop(typ, description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        typ,
		"description": description,
	}
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		// Camera
		{
			Name:        "camera_devices",
			Description: "List the available camera devices and the one currently streaming.",
			InputSchema: objectSchema(map[string]interface{}{}),
		},
		{
			Name:        "camera_select",
			Description: "Stop the current camera and open another one. Use this to recover after a device failure.",
			InputSchema: objectSchema(map[string]interface{}{
				"selector": prop("string", "Device index or name. Empty picks the first color camera."),
			}),
		},

		// Detection results
		{
			Name:        "shadow_status",
			Description: "Report pipeline state: device, frame size, lifecycle events, frame sequence, shadow count and calibration state.",
			InputSchema: objectSchema(map[string]interface{}{}),
		},
		{
			Name:        "shadow_list",
			Description: "Return the shadow polygons of the latest processed frame in world coordinates.",
			InputSchema: objectSchema(map[string]interface{}{}),
		},
		{
			Name:        "shadow_view",
			Description: "Return one pipeline image of the latest frame as base64-encoded PNG.",
			InputSchema: objectSchema(map[string]interface{}{
				"texture": map[string]interface{}{
					"type":        "string",
					"description": "Image to return",
					"enum":        pipeline.TextureNames,
				},
				"scale": map[string]interface{}{
					"type":        "number",
					"description": "Optional scale factor. Defaults to the configured preview scale.",
				},
			}, "texture"),
		},
		{
			Name:        "frame_sample",
			Description: "Sample pixel colors from a pipeline image of the latest frame. Useful for choosing color shift and threshold.",
			InputSchema: objectSchema(map[string]interface{}{
				"texture": map[string]interface{}{
					"type":        "string",
					"description": "Image to sample. Default: rectified",
					"enum":        pipeline.TextureNames,
				},
				"points": map[string]interface{}{
					"type":        "array",
					"description": "Pixel coordinates to sample",
					"items": objectSchema(map[string]interface{}{
						"x":     prop("integer", "X coordinate"),
						"y":     prop("integer", "Y coordinate"),
						"label": prop("string", "Optional label"),
					}, "x", "y"),
				},
			}, "points"),
		},

		// Parameters
		{
			Name:        "params_get",
			Description: "Read the detection parameters, or a single field.",
			InputSchema: objectSchema(map[string]interface{}{
				"field": prop("string", "Optional field: r, g, b, threshold, epsilon, gaussian, contourMinArea, useApprox"),
			}),
		},
		{
			Name:        "params_set",
			Description: "Set one detection parameter. Values are clamped to their valid range; an even blur size is reduced to the next odd size. Returns the stored value.",
			InputSchema: objectSchema(map[string]interface{}{
				"field": prop("string", "Field: r, g, b, threshold, epsilon, gaussian, contourMinArea, useApprox"),
				"value": map[string]interface{}{
					"description": "Number, or boolean for useApprox",
				},
			}, "field", "value"),
		},

		// Calibration
		{
			Name:        "calibration_enter",
			Description: "Start calibrating. Parameters and corners can be edited until accepted or cancelled.",
			InputSchema: objectSchema(map[string]interface{}{}),
		},
		{
			Name:        "calibration_accept",
			Description: "Finish calibrating and save all edits.",
			InputSchema: objectSchema(map[string]interface{}{}),
		},
		{
			Name:        "calibration_cancel",
			Description: "Finish calibrating and restore the values from when calibration started.",
			InputSchema: objectSchema(map[string]interface{}{}),
		},
		{
			Name:        "calibration_select",
			Description: "Select the corner to drag: 0 top-left, 1 top-right, 2 bottom-left, 3 bottom-right.",
			InputSchema: objectSchema(map[string]interface{}{
				"index": prop("integer", "Corner index 0-3"),
			}, "index"),
		},
		{
			Name:        "calibration_pointer",
			Description: "Send a pointer event. down starts dragging the selected corner, move drags it, up stores it and selects the next corner, cancel drops the drag.",
			InputSchema: objectSchema(map[string]interface{}{
				"action": map[string]interface{}{
					"type":        "string",
					"description": "Pointer action",
					"enum":        []string{"down", "move", "up", "cancel"},
				},
				"x": prop("number", "Pointer X"),
				"y": prop("number", "Pointer Y"),
				"space": map[string]interface{}{
					"type":        "string",
					"description": "Coordinate space of x and y. Default: pixel",
					"enum":        []string{"pixel", "screen"},
				},
			}, "action"),
		},
		{
			Name:        "calibration_status",
			Description: "Report calibration state, selected corner, drag state and the four corners.",
			InputSchema: objectSchema(map[string]interface{}{}),
		},
	}
}

// handleToolsList responds to tools/list with every tool definition
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
