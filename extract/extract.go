// Package extract calls the vision-extraction service: given an image, a
// prompt and a field schema it returns a field→value mapping, or fails.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Request carries one extraction call.
type Request struct {
	ImageBase64 string
	Prompt      string
	Schema      string
	Model       string
	APIKey      string
}

// Extractor turns a photo into a field→value map.
type Extractor interface {
	Analyze(ctx context.Context, req Request) (map[string]interface{}, error)
}

// Error is an application-level extraction failure. Its message is surfaced
// into the owning capture session, scoped to that zone only.
type Error struct {
	Msg string
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

const defaultBaseURL = "https://generativelanguage.googleapis.com"

// Client calls a Gemini-style generateContent endpoint.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// NewClient creates an extraction client with sane timeouts.
func NewClient() *Client {
	return &Client{
		BaseURL: defaultBaseURL,
		HTTP:    &http.Client{Timeout: 60 * time.Second},
	}
}

type generateRequest struct {
	Contents          []content       `json:"contents"`
	SystemInstruction *content        `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConf `json:"generationConfig,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type generationConf struct {
	ResponseMimeType string      `json:"responseMimeType"`
	ResponseSchema   interface{} `json:"responseSchema"`
	Temperature      float64     `json:"temperature"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Analyze sends the image and schema to the service and decodes the JSON map
// it returns. A missing API key, a malformed schema, an empty response or a
// non-2xx status all fail with *Error.
func (c *Client) Analyze(ctx context.Context, req Request) (map[string]interface{}, error) {
	if req.APIKey == "" {
		return nil, &Error{Msg: "no API key configured"}
	}

	var rawSchema interface{}
	if err := json.Unmarshal([]byte(req.Schema), &rawSchema); err != nil {
		return nil, &Error{Msg: "invalid field schema", Err: err}
	}
	schema := SanitizeSchema(rawSchema)

	// Strip whitespace the image encoder may have inserted.
	image := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, req.ImageBase64)

	body := generateRequest{
		Contents: []content{{Parts: []part{
			{InlineData: &inlineData{MimeType: "image/jpeg", Data: image}},
			{Text: "Extract parameters precisely based on the provided image and system instructions. Follow the response schema strictly."},
		}}},
		SystemInstruction: &content{Parts: []part{{Text: req.Prompt}}},
		GenerationConfig: &generationConf{
			ResponseMimeType: "application/json",
			ResponseSchema:   schema,
			Temperature:      0.1,
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &Error{Msg: "encode request", Err: err}
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.BaseURL, req.Model)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(payload))
	if err != nil {
		return nil, &Error{Msg: "build request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", req.APIKey)

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return nil, &Error{Msg: "extraction call failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if resp.StatusCode == http.StatusBadRequest {
			return nil, &Error{Msg: "schema rejected by extraction service (check enum/const usage)"}
		}
		return nil, &Error{Msg: fmt.Sprintf("extraction service returned %d: %s", resp.StatusCode, msg)}
	}

	var gr generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return nil, &Error{Msg: "decode response", Err: err}
	}
	if len(gr.Candidates) == 0 || len(gr.Candidates[0].Content.Parts) == 0 {
		return nil, &Error{Msg: "service returned no data or the image was unreadable"}
	}
	text := gr.Candidates[0].Content.Parts[0].Text
	if text == "" {
		return nil, &Error{Msg: "service returned no data or the image was unreadable"}
	}

	var values map[string]interface{}
	if err := json.Unmarshal([]byte(text), &values); err != nil {
		return nil, &Error{Msg: "unparseable extraction result", Err: err}
	}
	return values, nil
}

// NumericFields coerces an extraction result to the numeric field map used by
// the capture flow, dropping non-numeric values.
func NumericFields(values map[string]interface{}) map[string]float64 {
	out := make(map[string]float64, len(values))
	for k, v := range values {
		if n, ok := v.(float64); ok {
			out[k] = n
		}
	}
	return out
}
