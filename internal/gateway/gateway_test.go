package gateway_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/bulkwave/messaging-backend/internal/gateway"
	"github.com/bulkwave/messaging-backend/internal/render"
)

// MockDoer captures the request and returns a canned response.
type MockDoer struct {
	Request    *http.Request
	StatusCode int
	Body       string
}

func (m *MockDoer) Do(req *http.Request) (*http.Response, error) {
	m.Request = req
	return &http.Response{
		StatusCode: m.StatusCode,
		Body:       io.NopCloser(bytes.NewReader([]byte(m.Body))),
	}, nil
}

func TestBuildPayloadText(t *testing.T) {
	content := render.Rendered{Header: "h", Body: "b", Footer: "f"}
	p, err := gateway.BuildPayload(gateway.KindText, "254700000001", content, "")
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if p.To != "254700000001" || p.Type != gateway.KindText {
		t.Errorf("unexpected payload: %+v", p)
	}
	if p.Text == nil || p.Text.Body != "h\nb\nf" {
		t.Errorf("expected flattened text body, got %+v", p.Text)
	}
}

func TestBuildPayloadMediaKinds(t *testing.T) {
	content := render.Rendered{Body: "caption"}

	p, err := gateway.BuildPayload(gateway.KindImage, "x", content, "media-1")
	if err != nil {
		t.Fatalf("image build failed: %v", err)
	}
	if p.Image == nil || p.Image.Ref != "media-1" || p.Image.Caption != "caption" {
		t.Errorf("image payload: %+v", p.Image)
	}

	p, err = gateway.BuildPayload(gateway.KindDocument, "x", content, "media-2")
	if err != nil {
		t.Fatalf("document build failed: %v", err)
	}
	if p.Document == nil || p.Document.Ref != "media-2" {
		t.Errorf("document payload: %+v", p.Document)
	}
}

func TestBuildPayloadRejectsMediaWithoutRef(t *testing.T) {
	if _, err := gateway.BuildPayload(gateway.KindVideo, "x", render.Rendered{}, ""); err == nil {
		t.Fatal("expected missing media ref to be rejected")
	}
}

func TestBuildPayloadRejectsUnknownKind(t *testing.T) {
	if _, err := gateway.BuildPayload("sticker", "x", render.Rendered{}, ""); err == nil {
		t.Fatal("expected unknown kind to be rejected")
	}
}

func TestSendReturnsProviderMessageID(t *testing.T) {
	doer := &MockDoer{StatusCode: 200, Body: `{"messages": [{"id": "wamid-42"}]}`}
	g := &gateway.Gateway{BaseURL: "https://api.example/v1", HTTP: doer}

	creds := gateway.Credentials{ChannelAddress: "15550001111", Token: "secret"}
	p, _ := gateway.BuildPayload(gateway.KindText, "254700000001", render.Rendered{Body: "hi"}, "")

	id, err := g.Send(context.Background(), creds, p)
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if id != "wamid-42" {
		t.Errorf("expected wamid-42, got %q", id)
	}

	req := doer.Request
	if req.URL.String() != "https://api.example/v1/15550001111/messages" {
		t.Errorf("unexpected url %q", req.URL)
	}
	if req.Header.Get("Authorization") != "Bearer secret" {
		t.Errorf("unexpected auth header %q", req.Header.Get("Authorization"))
	}
}

func TestSendSurfacesProviderError(t *testing.T) {
	doer := &MockDoer{StatusCode: 400, Body: `{"error": {"code": "invalid_recipient", "message": "not a valid number"}}`}
	g := &gateway.Gateway{BaseURL: "https://api.example/v1", HTTP: doer}

	_, err := g.Send(context.Background(), gateway.Credentials{}, gateway.Payload{})
	var pe *gateway.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if pe.Code != "invalid_recipient" {
		t.Errorf("expected invalid_recipient, got %q", pe.Code)
	}
}

func TestSendRejectsEmptyMessageList(t *testing.T) {
	doer := &MockDoer{StatusCode: 200, Body: `{"messages": []}`}
	g := &gateway.Gateway{BaseURL: "https://api.example/v1", HTTP: doer}

	_, err := g.Send(context.Background(), gateway.Credentials{}, gateway.Payload{})
	var pe *gateway.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProviderError for empty message list, got %v", err)
	}
}

func TestUploadMediaReturnsHandle(t *testing.T) {
	doer := &MockDoer{StatusCode: 200, Body: `{"media_handle": "media-99"}`}
	g := &gateway.Gateway{BaseURL: "https://api.example/v1", HTTP: doer}

	handle, err := g.UploadMedia(context.Background(), gateway.Credentials{ChannelAddress: "c"}, []byte("bytes"), "image/png")
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	if handle != "media-99" {
		t.Errorf("expected media-99, got %q", handle)
	}
	if doer.Request.Header.Get("Content-Type") != "image/png" {
		t.Errorf("mime type not forwarded: %q", doer.Request.Header.Get("Content-Type"))
	}
}
