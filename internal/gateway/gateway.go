// Package gateway shapes rendered templates into the provider's wire
// payload and transmits one message per Send call. It performs no retries;
// retry policy belongs to the dispatcher.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bulkwave/messaging-backend/internal/render"
)

const (
	KindText     = "text"
	KindImage    = "image"
	KindVideo    = "video"
	KindDocument = "document"
)

// Credentials identify one account's channel with the provider.
type Credentials struct {
	ChannelAddress string
	Token          string
}

// TextContent is the body of a plain text message.
type TextContent struct {
	Body string `json:"body"`
}

// MediaContent references an uploaded media handle with an optional caption.
type MediaContent struct {
	Ref     string `json:"ref"`
	Caption string `json:"caption,omitempty"`
}

// Payload is the provider wire shape for one outbound message.
type Payload struct {
	To       string        `json:"to"`
	Type     string        `json:"type"`
	Text     *TextContent  `json:"text,omitempty"`
	Image    *MediaContent `json:"image,omitempty"`
	Video    *MediaContent `json:"video,omitempty"`
	Document *MediaContent `json:"document,omitempty"`
}

// ProviderError is the structured {code, message} failure the provider
// returns. Expected failures (invalid recipient, rate limit) come back as
// values, never panics.
type ProviderError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error %s: %s", e.Code, e.Message)
}

// Sender is the single send contract the dispatcher depends on.
type Sender interface {
	Send(ctx context.Context, creds Credentials, p Payload) (string, error)
}

// Doer lets tests substitute the HTTP transport.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Gateway is the HTTP-backed provider client.
type Gateway struct {
	BaseURL string
	HTTP    Doer
	Timeout time.Duration
}

func New(baseURL string, timeout time.Duration) *Gateway {
	return &Gateway{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: timeout},
		Timeout: timeout,
	}
}

// BuildPayload turns a rendered template into the wire shape for its kind.
// Text messages carry the flattened components; media kinds carry the media
// handle with the rendered text as caption.
func BuildPayload(kind, recipient string, content render.Rendered, mediaRef string) (Payload, error) {
	p := Payload{To: recipient, Type: kind}
	switch kind {
	case KindText:
		p.Text = &TextContent{Body: content.Flatten()}
	case KindImage:
		p.Image = &MediaContent{Ref: mediaRef, Caption: content.Body}
	case KindVideo:
		p.Video = &MediaContent{Ref: mediaRef, Caption: content.Body}
	case KindDocument:
		p.Document = &MediaContent{Ref: mediaRef, Caption: content.Body}
	default:
		return Payload{}, fmt.Errorf("gateway: unknown payload kind %q", kind)
	}
	if kind != KindText && mediaRef == "" {
		return Payload{}, fmt.Errorf("gateway: %s payload requires a media ref", kind)
	}
	return p, nil
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *ProviderError `json:"error"`
}

// Send transmits one message and returns the provider message id. The
// context bounds the call so one unresponsive recipient cannot stall a
// whole campaign run.
func (g *Gateway) Send(ctx context.Context, creds Credentials, p Payload) (string, error) {
	if g.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.Timeout)
		defer cancel()
	}

	body, err := json.Marshal(p)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/%s/messages", g.BaseURL, creds.ChannelAddress)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+creds.Token)

	resp, err := g.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("gateway: send: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("gateway: read response: %w", err)
	}

	var out sendResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("gateway: decode response (status %d): %w", resp.StatusCode, err)
	}
	if out.Error != nil {
		return "", out.Error
	}
	if resp.StatusCode >= 300 || len(out.Messages) == 0 {
		return "", &ProviderError{Code: fmt.Sprintf("http_%d", resp.StatusCode), Message: "send rejected"}
	}
	return out.Messages[0].ID, nil
}

type uploadResponse struct {
	MediaHandle string         `json:"media_handle"`
	Error       *ProviderError `json:"error"`
}

// UploadMedia pushes file bytes to the provider and returns the media
// handle referenced by media payloads.
func (g *Gateway) UploadMedia(ctx context.Context, creds Credentials, data []byte, mimeType string) (string, error) {
	if g.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.Timeout)
		defer cancel()
	}

	url := fmt.Sprintf("%s/%s/media", g.BaseURL, creds.ChannelAddress)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mimeType)
	req.Header.Set("Authorization", "Bearer "+creds.Token)

	resp, err := g.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("gateway: upload: %w", err)
	}
	defer resp.Body.Close()

	var out uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("gateway: decode upload response: %w", err)
	}
	if out.Error != nil {
		return "", out.Error
	}
	if out.MediaHandle == "" {
		return "", &ProviderError{Code: fmt.Sprintf("http_%d", resp.StatusCode), Message: "upload rejected"}
	}
	return out.MediaHandle, nil
}

var _ Sender = (*Gateway)(nil)
