package server

import (
	"bufio"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/ironsheep/shadow-detector/internal/calibration"
	"github.com/ironsheep/shadow-detector/internal/camera"
	"github.com/ironsheep/shadow-detector/internal/params"
	"github.com/ironsheep/shadow-detector/internal/pipeline"
	"github.com/ironsheep/shadow-detector/internal/prefs"
	"github.com/ironsheep/shadow-detector/internal/viewport"
)

const testFrameSize = 40

// createQuadrantFrame returns a white frame whose top-left quadrant is black.
func createQuadrantFrame() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, testFrameSize, testFrameSize))
	for y := 0; y < testFrameSize; y++ {
		for x := 0; x < testFrameSize; x++ {
			c := color.RGBA{255, 255, 255, 255}
			if x < testFrameSize/2 && y < testFrameSize/2 {
				c = color.RGBA{0, 0, 0, 255}
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

// testEnv is a server wired to an in-memory camera and a running tick loop.
type testEnv struct {
	server   *Server
	driver   *camera.MemoryDriver
	store    *params.Store
	calib    *calibration.Controller
	detector *pipeline.Detector
}

func newTestEnv(t *testing.T, devs ...camera.DeviceDescriptor) *testEnv {
	t.Helper()

	e := &testEnv{driver: camera.NewMemoryDriver(devs...)}
	e.store = params.NewStore(prefs.NewMemory(), nil)
	e.store.SetParams(params.DetectionParameters{
		Threshold:        128,
		BlurKernelSize:   1,
		EpsilonFactor:    0.001,
		SimplifyContours: true,
	})
	e.calib = calibration.New(e.store, nil)
	e.detector = pipeline.NewDetector(e.driver, e.store, e.calib, nil, pipeline.Options{
		Request:    camera.Request{Width: testFrameSize, Height: testFrameSize},
		Mapper:     viewport.Mapper{ScreenW: testFrameSize, ScreenH: testFrameSize},
		Views:      true,
		DrawPoints: true,
	}, nil)
	if len(devs) > 0 {
		if err := e.detector.Start(); err != nil {
			t.Fatalf("Start: %v", err)
		}
	}

	runner := pipeline.NewRunner(e.detector, 500, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		runner.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	e.server = New(Deps{
		Runner:       runner,
		Store:        e.store,
		Calibration:  e.calib,
		PreviewScale: 1,
	})
	return e
}

// waitForView pushes frames until the detector publishes a view.
func (e *testEnv) waitForView(t *testing.T) *pipeline.View {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		if v := e.detector.View(); v != nil {
			return v
		}
		if time.Now().After(deadline) {
			t.Fatal("no frame was processed")
		}
		e.driver.Stream("cam").Push(createQuadrantFrame())
		time.Sleep(2 * time.Millisecond)
	}
}

func TestNew(t *testing.T) {
	e := newTestEnv(t)
	if e.server == nil {
		t.Fatal("New() returned nil")
	}
	if e.server.detector != e.detector {
		t.Error("New() did not take the runner's detector")
	}
	if e.server.previewScale != 1 {
		t.Errorf("previewScale: got %v, want 1", e.server.previewScale)
	}
}

func TestMCPRequest_Unmarshal(t *testing.T) {
	tests := []struct {
		name       string
		json       string
		wantID     interface{}
		wantMethod string
	}{
		{
			"string id",
			`{"jsonrpc":"2.0","id":"test-1","method":"tools/list"}`,
			"test-1",
			"tools/list",
		},
		{
			"number id",
			`{"jsonrpc":"2.0","id":42,"method":"ping"}`,
			float64(42), // JSON numbers decode as float64
			"ping",
		},
		{
			"null id",
			`{"jsonrpc":"2.0","id":null,"method":"initialize"}`,
			nil,
			"initialize",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req MCPRequest
			if err := json.Unmarshal([]byte(tt.json), &req); err != nil {
				t.Fatalf("Failed to unmarshal: %v", err)
			}

			if req.ID != tt.wantID {
				t.Errorf("ID: got %v (%T), want %v (%T)", req.ID, req.ID, tt.wantID, tt.wantID)
			}
			if req.Method != tt.wantMethod {
				t.Errorf("Method: got %s, want %s", req.Method, tt.wantMethod)
			}
		})
	}
}

func TestMCPResponse_WithError(t *testing.T) {
	resp := MCPResponse{
		JSONRPC: "2.0",
		ID:      1,
		Error: &MCPError{
			Code:    -32601,
			Message: "Method not found",
		},
	}

	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("Failed to marshal: %v", err)
	}
	if strings.Contains(string(data), `"result"`) {
		t.Errorf("error response should omit result: %s", data)
	}

	var decoded MCPResponse
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Failed to unmarshal: %v", err)
	}
	if decoded.Error == nil || decoded.Error.Code != -32601 {
		t.Errorf("Error: got %+v, want code -32601", decoded.Error)
	}
}

func TestHandleRequest(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		method   string
		id       interface{}
		wantNil  bool
		wantCode int
	}{
		{"initialize", "initialize", 1, false, 0},
		{"ping", "ping", "ping-1", false, 0},
		{"tools list", "tools/list", 2, false, 0},
		{"initialized notification", "notifications/initialized", nil, true, 0},
		{"unknown method", "nonexistent/method", 3, false, -32601},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := e.server.handleRequest(ctx, &MCPRequest{JSONRPC: "2.0", ID: tt.id, Method: tt.method})
			if tt.wantNil {
				if resp != nil {
					t.Errorf("got %+v, want no response", resp)
				}
				return
			}
			if resp == nil {
				t.Fatal("handleRequest returned nil")
			}
			if resp.ID != tt.id {
				t.Errorf("ID: got %v, want %v", resp.ID, tt.id)
			}
			if tt.wantCode == 0 && resp.Error != nil {
				t.Errorf("unexpected error: %+v", resp.Error)
			}
			if tt.wantCode != 0 && (resp.Error == nil || resp.Error.Code != tt.wantCode) {
				t.Errorf("error: got %+v, want code %d", resp.Error, tt.wantCode)
			}
		})
	}
}

func TestHandleInitialize(t *testing.T) {
	e := newTestEnv(t)
	resp := e.server.handleInitialize(&MCPRequest{JSONRPC: "2.0", ID: "init-1"})

	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatal("Result should be a map")
	}
	if result["protocolVersion"] != "2024-11-05" {
		t.Errorf("protocolVersion: got %v", result["protocolVersion"])
	}
	serverInfo, ok := result["serverInfo"].(map[string]interface{})
	if !ok {
		t.Fatal("serverInfo should be a map")
	}
	if serverInfo["name"] != "shadow-detector" {
		t.Errorf("serverInfo.name: got %v", serverInfo["name"])
	}
	if serverInfo["version"] != Version {
		t.Errorf("serverInfo.version: got %v", serverInfo["version"])
	}
}

func TestServe_RequestsAndResponses(t *testing.T) {
	e := newTestEnv(t)

	in := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"ping"}`,
		``,
		`not json`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"params_get","arguments":{"field":"threshold"}}}`,
	}, "\n")
	var out strings.Builder
	if err := e.server.Serve(context.Background(), strings.NewReader(in), &out); err != nil {
		t.Fatalf("Serve: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("responses: got %d, want 2:\n%s", len(lines), out.String())
	}

	var resp MCPResponse
	if err := json.Unmarshal([]byte(lines[1]), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ID != float64(2) || resp.Error != nil {
		t.Errorf("tools/call response: %+v", resp)
	}
	if !strings.Contains(lines[1], `128`) {
		t.Errorf("threshold missing from %s", lines[1])
	}
}

func TestServe_CancelledContext(t *testing.T) {
	e := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out strings.Builder
	in := `{"jsonrpc":"2.0","id":1,"method":"ping"}` + "\n"
	if err := e.server.Serve(ctx, strings.NewReader(in), &out); err != nil {
		t.Fatalf("Serve: %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("no response expected after cancellation, got %s", out.String())
	}
}

func TestServe_ReturnsOnCancelWhileIdle(t *testing.T) {
	e := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())

	// Nothing is ever written, so the reader stays blocked.
	inR, inW := io.Pipe()
	defer inW.Close()

	served := make(chan error, 1)
	go func() { served <- e.server.Serve(ctx, inR, io.Discard) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-served:
		if err != nil {
			t.Errorf("Serve: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}
}

func TestServe_PipelineNotifications(t *testing.T) {
	e := newTestEnv(t, camera.DeviceDescriptor{Name: "cam"})

	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	served := make(chan error, 1)
	go func() { served <- e.server.Serve(context.Background(), inR, outW) }()

	// A ping round trip guarantees Serve is writing before frames arrive.
	lines := bufio.NewScanner(outR)
	io.WriteString(inW, `{"jsonrpc":"2.0","id":1,"method":"ping"}`+"\n")
	if !lines.Scan() {
		t.Fatal("no ping response")
	}

	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
				e.driver.Stream("cam").Push(createQuadrantFrame())
				time.Sleep(2 * time.Millisecond)
			}
		}
	}()
	defer close(stop)

	var events []string
	for len(events) < 2 && lines.Scan() {
		var n MCPNotification
		if err := json.Unmarshal(lines.Bytes(), &n); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if n.Method != "notifications/pipeline" {
			t.Fatalf("unexpected message %s", lines.Text())
		}
		p := n.Params.(map[string]interface{})
		events = append(events, p["event"].(string))
	}
	go io.Copy(io.Discard, outR)

	if len(events) != 2 || events[0] != "init_done" || events[1] != "first_frame" {
		t.Errorf("events: got %v, want [init_done first_frame]", events)
	}

	inW.Close()
	if err := <-served; err != nil {
		t.Errorf("Serve: %v", err)
	}
}
