package gallery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
)

const defaultEmbedderURL = "http://localhost:8000"

// Embedder maps an image sample to a face embedding vector.
type Embedder interface {
	Embed(ctx context.Context, sample []byte) ([]float32, error)
}

// HTTPEmbedder computes face embeddings using the embedding server.
type HTTPEmbedder struct {
	baseURL string
	client  *http.Client
}

func NewHTTPEmbedder(baseURL string) *HTTPEmbedder {
	if baseURL == "" {
		baseURL = defaultEmbedderURL
	}
	return &HTTPEmbedder{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{},
	}
}

// faceDetection represents a single detected face
type faceDetection struct {
	FaceIndex int       `json:"face_index"`
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2]
	DetScore  float64   `json:"det_score"`
}

// faceResponse represents the response from the face embedding endpoint
type faceResponse struct {
	FacesCount int             `json:"faces_count"`
	Faces      []faceDetection `json:"faces"`
	Model      string          `json:"model"`
}

// Embed detects faces in the sample and returns the embedding of the face
// with the highest detection score. Samples with no detectable face are an
// error; enrollment photos and probe captures are both expected to contain
// exactly one face.
func (c *HTTPEmbedder) Embed(ctx context.Context, sample []byte) ([]float32, error) {
	body, err := c.postMultipartImage(ctx, "/embed/face", sample)
	if err != nil {
		return nil, err
	}

	var faceResp faceResponse
	if err := json.Unmarshal(body, &faceResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if faceResp.FacesCount == 0 || len(faceResp.Faces) == 0 {
		return nil, errors.New("no face detected in sample")
	}

	best := faceResp.Faces[0]
	for _, face := range faceResp.Faces[1:] {
		if face.DetScore > best.DetScore {
			best = face
		}
	}

	if len(best.Embedding) == 0 {
		return nil, errors.New("empty embedding returned")
	}

	return best.Embedding, nil
}

// postMultipartImage constructs a multipart form with the image data and posts
// it to the given endpoint. The part carries an explicit Content-Type header
// based on magic byte detection.
func (c *HTTPEmbedder) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	mimeType := detectMIMEType(imageData)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image.jpg"`)
	h.Set("Content-Type", mimeType)
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}

// detectMIMEType detects the MIME type from image data
func detectMIMEType(data []byte) string {
	if len(data) < 8 {
		return "application/octet-stream"
	}
	// JPEG: FF D8 FF
	if data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return "image/jpeg"
	}
	// PNG: 89 50 4E 47 0D 0A 1A 0A
	if data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 {
		return "image/png"
	}
	// GIF: 47 49 46 38
	if data[0] == 0x47 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x38 {
		return "image/gif"
	}
	// WebP: 52 49 46 46 ... 57 45 42 50
	if len(data) >= 12 && data[0] == 0x52 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x46 &&
		data[8] == 0x57 && data[9] == 0x45 && data[10] == 0x42 && data[11] == 0x50 {
		return "image/webp"
	}
	return "application/octet-stream"
}

// EmbeddingComparator verifies identity by cosine distance between face
// embeddings. Reference embeddings are computed at enrollment and cached;
// the probe embedding is computed once per resolution and reused across
// the whole gallery scan via CompareEmbedding.
type EmbeddingComparator struct {
	embedder  Embedder
	threshold float64
}

// DefaultVerifyThreshold is the cosine distance below which two face
// embeddings are considered the same person. Tuned against the ArcFace
// model the embedding server ships with.
const DefaultVerifyThreshold = 0.55

func NewEmbeddingComparator(embedder Embedder, threshold float64) *EmbeddingComparator {
	if threshold <= 0 {
		threshold = DefaultVerifyThreshold
	}
	return &EmbeddingComparator{
		embedder:  embedder,
		threshold: threshold,
	}
}

func (c *EmbeddingComparator) Compare(ctx context.Context, probe, reference []byte) (Comparison, error) {
	probeEmb, err := c.embedder.Embed(ctx, probe)
	if err != nil {
		return Comparison{}, fmt.Errorf("could not embed probe: %w", err)
	}
	refEmb, err := c.embedder.Embed(ctx, reference)
	if err != nil {
		return Comparison{}, fmt.Errorf("could not embed reference: %w", err)
	}
	return c.CompareEmbedding(probeEmb, refEmb), nil
}

// CompareEmbedding compares two precomputed embeddings. Used by resolvers
// that keep enrollment embeddings around instead of re-embedding reference
// samples on every probe.
func (c *EmbeddingComparator) CompareEmbedding(probe, reference []float32) Comparison {
	distance := CosineDistance(probe, reference)
	return Comparison{
		Distance: distance,
		Verified: distance < c.threshold,
	}
}

// Threshold returns the configured verification threshold.
func (c *EmbeddingComparator) Threshold() float64 {
	return c.threshold
}
