package vaswire

// Package vaswire defines the IPC contract between the control plane and a
// model container: the request/response schema and the length-prefixed JSON
// framing that carries it over a Unix domain socket.

import (
	"fmt"
	"strings"
)

// Pixel formats we understand in frame_metadata.format
const FormatNV12 = "NV12"

// Maximum detections returned in a single response
const MaxDetections = 1000

// FrameMetadata describes the bytes behind a frame reference.
// The frame itself never travels over the socket.
type FrameMetadata struct {
	FrameID   int64   `json:"frame_id"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	Format    string  `json:"format"`
	Timestamp float64 `json:"timestamp"`
}

// Request is a single inference request.
// Exactly one request produces exactly one response. Requests are immutable
// after decode and must not outlive the response cycle.
type Request struct {
	FrameReference string                 `json:"frame_reference"`
	FrameMetadata  FrameMetadata          `json:"frame_metadata"`
	CameraID       string                 `json:"camera_id"`
	ModelID        string                 `json:"model_id"`
	Timestamp      float64                `json:"timestamp"`
	Config         map[string]interface{} `json:"config,omitempty"`
}

// Detection is one object-detection result.
// Box coordinates are normalized to [0,1] relative to the original frame.
type Detection struct {
	ClassID    int        `json:"class_id"`
	ClassName  string     `json:"class_name"`
	Confidence float32    `json:"confidence"`
	BBox       [4]float32 `json:"bbox"`
	TrackID    *int64     `json:"track_id"`
}

// Response is the reply to a single Request.
// If Error is non-empty then Detections is empty.
type Response struct {
	ModelID    string                 `json:"model_id"`
	CameraID   string                 `json:"camera_id"`
	FrameID    int64                  `json:"frame_id"`
	Detections []Detection            `json:"detections"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	Error      string                 `json:"error,omitempty"`
}

// Validate checks that all mandatory request fields are present and sane.
// A failure here produces an in-band error response, not a connection close.
func (r *Request) Validate() error {
	if r.FrameReference == "" {
		return fmt.Errorf("frame_reference must be a non-empty path")
	}
	if !strings.HasPrefix(r.FrameReference, "/dev/shm/") && !strings.HasPrefix(r.FrameReference, "/tmp/") {
		return fmt.Errorf("frame_reference '%v' is outside the allowed roots", r.FrameReference)
	}
	if r.CameraID == "" {
		return fmt.Errorf("camera_id must be a non-empty string")
	}
	if r.ModelID == "" {
		return fmt.Errorf("model_id must be a non-empty string")
	}
	if r.Timestamp <= 0 {
		return fmt.Errorf("timestamp must be a positive number")
	}
	return r.FrameMetadata.Validate()
}

func (m *FrameMetadata) Validate() error {
	if m.Width <= 0 || m.Height <= 0 {
		return fmt.Errorf("invalid frame dimensions %vx%v", m.Width, m.Height)
	}
	if m.Format == "" {
		return fmt.Errorf("frame_metadata.format is required")
	}
	return nil
}

// ErrorResponse builds a well-formed error reply that echoes the request's
// identity fields. Detections is always the empty list, never null.
func ErrorResponse(req *Request, msg string) *Response {
	return &Response{
		ModelID:    req.ModelID,
		CameraID:   req.CameraID,
		FrameID:    req.FrameMetadata.FrameID,
		Detections: []Detection{},
		Error:      msg,
	}
}
