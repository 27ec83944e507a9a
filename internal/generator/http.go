package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/reelforge/clip-engine/internal/domain"
)

const defaultCollaboratorTimeout = 60 * time.Second

// HTTPCollaborator talks to a generation gateway exposing content, critic,
// and synthesis endpoints. It implements every collaborator port so a single
// base URL can back the whole pipeline.
type HTTPCollaborator struct {
	client  *resty.Client
	baseURL string
}

var (
	_ ContentGenerator = (*HTTPCollaborator)(nil)
	_ CriticEvaluator  = (*HTTPCollaborator)(nil)
	_ AudioSynthesizer = (*HTTPCollaborator)(nil)
	_ VideoSynthesizer = (*HTTPCollaborator)(nil)
	_ Stitcher         = (*HTTPCollaborator)(nil)
)

func NewHTTPCollaborator(baseURL string) (*HTTPCollaborator, error) {
	client := resty.New()
	client.SetTimeout(defaultCollaboratorTimeout)
	client.SetRetryCount(0)

	return NewHTTPCollaboratorWithClient(baseURL, client)
}

func NewHTTPCollaboratorWithClient(baseURL string, client *resty.Client) (*HTTPCollaborator, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, fmt.Errorf("collaborator base url is required")
	}
	if _, err := url.ParseRequestURI(trimmed); err != nil {
		return nil, fmt.Errorf("invalid collaborator base url: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultCollaboratorTimeout)
	}
	client.SetRetryCount(0)

	return &HTTPCollaborator{client: client, baseURL: trimmed}, nil
}

type generateRequest struct {
	Content           string  `json:"content"`
	Platform          string  `json:"platform"`
	TargetDurationSec float64 `json:"targetDurationSec"`
	Voice             string  `json:"voice,omitempty"`
	Genre             string  `json:"genre,omitempty"`
	Language          string  `json:"language,omitempty"`
	Audience          string  `json:"audience,omitempty"`
}

type generateResponse struct {
	Scenes []domain.Scene `json:"scenes"`
}

type regenerateRequest struct {
	generateRequest
	Section string         `json:"section"`
	Scenes  []domain.Scene `json:"scenes"`
}

type regenerateResponse struct {
	Scene domain.Scene `json:"scene"`
}

type evaluateRequest struct {
	Scenes   []domain.Scene           `json:"scenes"`
	Platform string                   `json:"platform"`
	Profile  *domain.AlignmentProfile `json:"profile,omitempty"`
}

type synthesizeRequest struct {
	Text   string `json:"text,omitempty"`
	Prompt string `json:"prompt,omitempty"`
}

type synthesizeResponse struct {
	Ref string `json:"ref"`
}

type stitchRequest struct {
	Scenes []domain.Scene `json:"scenes"`
}

func (c *HTTPCollaborator) Generate(ctx context.Context, cfg domain.UnitConfig) ([]domain.Scene, error) {
	var out generateResponse
	if err := c.post(ctx, "generate", "/v1/generate", generateRequestFromConfig(cfg), &out); err != nil {
		return nil, err
	}
	if len(out.Scenes) == 0 {
		return nil, &Error{Stage: "generate", Message: "gateway returned no scenes"}
	}
	return out.Scenes, nil
}

func (c *HTTPCollaborator) RegenerateSection(ctx context.Context, cfg domain.UnitConfig, scenes []domain.Scene, section domain.SceneRole) (domain.Scene, error) {
	req := regenerateRequest{
		generateRequest: generateRequestFromConfig(cfg),
		Section:         section.String(),
		Scenes:          scenes,
	}

	var out regenerateResponse
	if err := c.post(ctx, "regenerate", "/v1/regenerate", req, &out); err != nil {
		return domain.Scene{}, err
	}
	return out.Scene, nil
}

func (c *HTTPCollaborator) Evaluate(ctx context.Context, scenes []domain.Scene, platform domain.Platform, profile *domain.AlignmentProfile) ([]byte, error) {
	req := evaluateRequest{Scenes: scenes, Platform: platform.String(), Profile: profile}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, &Error{Stage: "critic", Message: "encode request", Cause: err}
	}

	response, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(c.baseURL + "/v1/critic/score")
	if err != nil {
		return nil, &Error{Stage: "critic", Message: "gateway request failed", Cause: err}
	}
	if response.StatusCode() < http.StatusOK || response.StatusCode() >= http.StatusMultipleChoices {
		return nil, &Error{Stage: "critic", Message: fmt.Sprintf("gateway returned status %d", response.StatusCode())}
	}
	return response.Body(), nil
}

func (c *HTTPCollaborator) SynthesizeAudio(ctx context.Context, text string) (string, error) {
	var out synthesizeResponse
	if err := c.post(ctx, "audio", "/v1/synthesize/audio", synthesizeRequest{Text: text}, &out); err != nil {
		return "", err
	}
	return out.Ref, nil
}

func (c *HTTPCollaborator) SynthesizeVideo(ctx context.Context, prompt string) (string, error) {
	var out synthesizeResponse
	if err := c.post(ctx, "video", "/v1/synthesize/video", synthesizeRequest{Prompt: prompt}, &out); err != nil {
		return "", err
	}
	return out.Ref, nil
}

func (c *HTTPCollaborator) Stitch(ctx context.Context, scenes []domain.Scene) (string, error) {
	var out synthesizeResponse
	if err := c.post(ctx, "stitch", "/v1/stitch", stitchRequest{Scenes: scenes}, &out); err != nil {
		return "", err
	}
	return out.Ref, nil
}

func (c *HTTPCollaborator) post(ctx context.Context, stage, path string, body any, out any) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("collaborator is not initialized")
	}

	response, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(c.baseURL + path)
	if err != nil {
		return &Error{Stage: stage, Message: "gateway request failed", Cause: err}
	}

	statusCode := response.StatusCode()
	if statusCode < http.StatusOK || statusCode >= http.StatusMultipleChoices {
		return &Error{Stage: stage, Message: fmt.Sprintf("gateway returned status %d", statusCode)}
	}

	if err := json.Unmarshal(response.Body(), out); err != nil {
		return &Error{Stage: stage, Message: "decode response", Cause: err}
	}
	return nil
}

func generateRequestFromConfig(cfg domain.UnitConfig) generateRequest {
	return generateRequest{
		Content:           cfg.Content,
		Platform:          cfg.Platform.String(),
		TargetDurationSec: cfg.TargetDurationSec,
		Voice:             cfg.Voice,
		Genre:             cfg.Genre,
		Language:          cfg.Language,
		Audience:          cfg.Audience,
	}
}
