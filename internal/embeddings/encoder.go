package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// EmbeddingDim is the width of the image vector column.
const EmbeddingDim = 768

// Encoder turns a preprocessed image tensor into an embedding. It is opened
// once per run and must be closed to release the model.
type Encoder interface {
	Encode(ctx context.Context, t Tensor) ([]float32, error)
	ModelVersion() string
	Close(ctx context.Context) error
}

type EncoderOptions struct {
	URL        string
	Model      string
	InputName  string
	OutputName string
	Timeout    time.Duration
}

// InferenceEncoder talks to a KServe v2 inference server (Triton and
// compatible) that hosts the vision tower.
type InferenceEncoder struct {
	opts    EncoderOptions
	client  *http.Client
	log     *zap.Logger
	version string

	mu     sync.Mutex
	loaded bool
	closed bool
}

type inferTensor struct {
	Name     string    `json:"name"`
	Shape    []int64   `json:"shape,omitempty"`
	Datatype string    `json:"datatype,omitempty"`
	Data     []float32 `json:"data,omitempty"`
}

type inferRequest struct {
	Inputs  []inferTensor `json:"inputs"`
	Outputs []inferTensor `json:"outputs,omitempty"`
}

type inferResponse struct {
	ModelVersion string        `json:"model_version"`
	Outputs      []inferTensor `json:"outputs"`
}

type modelMetadata struct {
	Name     string   `json:"name"`
	Versions []string `json:"versions"`
}

// OpenEncoder asks the server to load the model and waits for it to report
// ready. Servers without explicit model control are accepted as long as the
// model is already ready.
func OpenEncoder(ctx context.Context, opts EncoderOptions, log *zap.Logger) (*InferenceEncoder, error) {
	if opts.InputName == "" {
		opts.InputName = "pixel_values"
	}
	if opts.OutputName == "" {
		opts.OutputName = "image_embeds"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	opts.URL = strings.TrimRight(opts.URL, "/")

	e := &InferenceEncoder{
		opts:   opts,
		client: &http.Client{Timeout: opts.Timeout},
		log:    log.With(zap.String("model", opts.Model)),
	}

	if err := e.call(ctx, http.MethodPost, e.repoPath("load"), nil, nil); err != nil {
		e.log.Warn("explicit model load refused", zap.Error(err))
	} else {
		e.loaded = true
	}

	if err := e.call(ctx, http.MethodGet, e.modelPath("ready"), nil, nil); err != nil {
		return nil, fmt.Errorf("%w: model %s not ready: %w", ErrEncode, opts.Model, err)
	}

	var meta modelMetadata
	if err := e.call(ctx, http.MethodGet, e.modelPath(""), nil, &meta); err == nil && len(meta.Versions) > 0 {
		e.version = meta.Versions[len(meta.Versions)-1]
	}
	e.log.Info("encoder ready", zap.String("version", e.ModelVersion()), zap.Bool("loaded", e.loaded))
	return e, nil
}

func (e *InferenceEncoder) ModelVersion() string {
	if e.version == "" {
		return e.opts.Model
	}
	return e.opts.Model + ":" + e.version
}

func (e *InferenceEncoder) Encode(ctx context.Context, t Tensor) ([]float32, error) {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("%w: encoder closed", ErrEncode)
	}

	req := inferRequest{
		Inputs:  []inferTensor{{Name: e.opts.InputName, Shape: t.Shape, Datatype: "FP32", Data: t.Data}},
		Outputs: []inferTensor{{Name: e.opts.OutputName}},
	}
	var resp inferResponse
	if err := e.call(ctx, http.MethodPost, e.modelPath("infer"), req, &resp); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncode, err)
	}

	for _, out := range resp.Outputs {
		if out.Name != e.opts.OutputName && len(resp.Outputs) > 1 {
			continue
		}
		if len(out.Data) != EmbeddingDim {
			return nil, fmt.Errorf("%w: got %d dimensions, want %d", ErrEncode, len(out.Data), EmbeddingDim)
		}
		return out.Data, nil
	}
	return nil, fmt.Errorf("%w: output %s missing", ErrEncode, e.opts.OutputName)
}

// Close unloads the model when this encoder loaded it. Safe to call twice.
func (e *InferenceEncoder) Close(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	if !e.loaded {
		return nil
	}
	if err := e.call(ctx, http.MethodPost, e.repoPath("unload"), nil, nil); err != nil {
		return fmt.Errorf("unload model %s: %w", e.opts.Model, err)
	}
	e.log.Info("encoder released")
	return nil
}

func (e *InferenceEncoder) repoPath(action string) string {
	return fmt.Sprintf("%s/v2/repository/models/%s/%s", e.opts.URL, e.opts.Model, action)
}

func (e *InferenceEncoder) modelPath(action string) string {
	p := fmt.Sprintf("%s/v2/models/%s", e.opts.URL, e.opts.Model)
	if action != "" {
		p += "/" + action
	}
	return p
}

func (e *InferenceEncoder) call(ctx context.Context, method, url string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: status %d: %s", method, url, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
