package handler

// The inference handler is a stateless per-request pipeline:
// validate -> read frame -> preprocess -> infer -> post-process -> respond.
// It holds no state between invocations beyond the immutable model and its
// configuration, so any number of connection workers may call it
// concurrently. Only the forward pass is serialized, under inferLock.

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/cyclopcam/logs"
	"github.com/vasedge/modelhost/pkg/modeldesc"
	"github.com/vasedge/modelhost/pkg/nn"
	"github.com/vasedge/modelhost/pkg/nnruntime"
	"github.com/vasedge/modelhost/pkg/nv12"
	"github.com/vasedge/modelhost/pkg/shmframe"
	"github.com/vasedge/modelhost/pkg/vaswire"
)

type Handler struct {
	log      logs.Log
	desc     *modeldesc.Descriptor
	rt       nnruntime.Runtime
	classes  []string
	defaults nn.DetectionParams
	metrics  *Metrics

	// Serializes the model forward pass. Held strictly around Infer, never
	// across frame I/O or preprocessing.
	inferLock sync.Mutex
}

func New(log logs.Log, desc *modeldesc.Descriptor, rt nnruntime.Runtime, classes []string, metrics *Metrics) *Handler {
	defaults := nn.DetectionParams{
		ConfidenceThreshold: float32(desc.ConfidenceThreshold),
		BuiltinNMS:          desc.SchemaBool("builtin_nms"),
	}
	if desc.NmsIouThreshold != nil {
		defaults.NmsIouThreshold = float32(*desc.NmsIouThreshold)
	}
	return &Handler{
		log:      log,
		desc:     desc,
		rt:       rt,
		classes:  classes,
		defaults: defaults,
		metrics:  metrics,
	}
}

// Handle processes one framed request and returns the framed response
// payload. A returned error is a protocol violation: the caller closes the
// connection without responding. Every other failure produces a well-formed
// error response with empty detections.
func (h *Handler) Handle(requestBytes []byte) ([]byte, error) {
	start := time.Now()
	response, isErr := h.process(requestBytes)
	if response == nil {
		h.metrics.Observe(float64(time.Since(start).Milliseconds()), true)
		return nil, fmt.Errorf("malformed request payload")
	}
	h.metrics.Observe(float64(time.Since(start).Milliseconds()), isErr)
	out, err := json.Marshal(response)
	if err != nil {
		return nil, fmt.Errorf("failed to encode response: %w", err)
	}
	return out, nil
}

// process returns (nil, true) only for protocol errors that cannot be
// answered in-band.
func (h *Handler) process(requestBytes []byte) (*vaswire.Response, bool) {
	if !utf8.Valid(requestBytes) {
		return nil, true
	}
	req := &vaswire.Request{}
	if err := json.Unmarshal(requestBytes, req); err != nil {
		if _, ok := err.(*json.UnmarshalTypeError); ok {
			// The payload is valid JSON with a mis-typed field. The decoder
			// skips that field and fills the others, so the identity
			// fields that decoded are still echoed.
			return vaswire.ErrorResponse(req, fmt.Sprintf("invalid request: %v", err)), true
		}
		return nil, true
	}

	if err := req.Validate(); err != nil {
		return vaswire.ErrorResponse(req, fmt.Sprintf("invalid request: %v", err)), true
	}
	if req.ModelID != h.desc.ModelID {
		return vaswire.ErrorResponse(req, fmt.Sprintf("model_id mismatch: this container serves '%v', request is for '%v'", h.desc.ModelID, req.ModelID)), true
	}

	params, err := h.requestParams(req)
	if err != nil {
		return vaswire.ErrorResponse(req, fmt.Sprintf("invalid request config: %v", err)), true
	}

	md := req.FrameMetadata
	frame, err := shmframe.ReadFrame(req.FrameReference, md.Width, md.Height, md.Format)
	if err != nil {
		return vaswire.ErrorResponse(req, fmt.Sprintf("frame read failed: %v", err)), true
	}

	rgb, err := nv12.ToRGBA(frame, md.Width, md.Height)
	if err != nil {
		return vaswire.ErrorResponse(req, fmt.Sprintf("preprocess failed: %v", err)), true
	}
	inputWidth := h.desc.ExpectedResolution[0]
	inputHeight := h.desc.ExpectedResolution[1]
	tensor, err := nv12.Tensor(rgb, inputWidth, inputHeight)
	if err != nil {
		return vaswire.ErrorResponse(req, fmt.Sprintf("preprocess failed: %v", err)), true
	}

	h.inferLock.Lock()
	inferStart := time.Now()
	output, dims, err := h.rt.Infer(tensor)
	inferMS := float64(time.Since(inferStart).Nanoseconds()) / 1e6
	h.inferLock.Unlock()
	if err != nil {
		return vaswire.ErrorResponse(req, fmt.Sprintf("inference failed: %v", err)), true
	}

	raw, err := nn.DecodeDetections(output, dims, inputWidth, inputHeight)
	if err != nil {
		return vaswire.ErrorResponse(req, fmt.Sprintf("postprocess failed: %v", err)), true
	}
	kept := nn.PostProcess(raw, params, vaswire.MaxDetections)

	detections := make([]vaswire.Detection, 0, len(kept))
	for _, d := range kept {
		detections = append(detections, vaswire.Detection{
			ClassID:    d.Class,
			ClassName:  h.className(d.Class),
			Confidence: d.Confidence,
			BBox:       [4]float32{d.Box.X1, d.Box.Y1, d.Box.X2, d.Box.Y2},
		})
	}

	return &vaswire.Response{
		ModelID:    h.desc.ModelID,
		CameraID:   req.CameraID,
		FrameID:    md.FrameID,
		Detections: detections,
		Metadata: map[string]interface{}{
			"inference_time_ms": inferMS,
			"device":            h.rt.Device().String(),
		},
	}, false
}

// requestParams merges per-request config overrides over the container
// defaults. Overrides last exactly one request.
func (h *Handler) requestParams(req *vaswire.Request) (nn.DetectionParams, error) {
	params := h.defaults
	if req.Config == nil {
		return params, nil
	}
	if v, ok := req.Config["confidence_threshold"]; ok {
		f, ok := v.(float64)
		if !ok || f < 0 || f > 1 {
			return params, fmt.Errorf("confidence_threshold must be a number in [0,1]")
		}
		params.ConfidenceThreshold = float32(f)
	}
	if v, ok := req.Config["nms_iou_threshold"]; ok {
		f, ok := v.(float64)
		if !ok || f < 0 || f > 1 {
			return params, fmt.Errorf("nms_iou_threshold must be a number in [0,1]")
		}
		params.NmsIouThreshold = float32(f)
	}
	return params, nil
}

func (h *Handler) className(classID int) string {
	if classID >= 0 && classID < len(h.classes) {
		return h.classes[classID]
	}
	return fmt.Sprintf("class_%v", classID)
}
