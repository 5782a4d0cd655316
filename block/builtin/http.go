//
// Tencent is pleased to support the open source community by making trpc-flow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-flow-go is licensed under the Apache License Version 2.0.
//
//

package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"

	"trpc.group/trpc-go/trpc-flow-go/block"
	"trpc.group/trpc-go/trpc-flow-go/render"
)

type httpRequestSettings struct {
	Method  string            `json:"method,omitempty" jsonschema:"description=HTTP method; GET when empty"`
	URL     string            `json:"url" jsonschema:"description=Request URL; supports {{ }} expressions"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    any               `json:"body,omitempty" jsonschema:"description=JSON body or raw string content"`
}

type httpRequestOutput struct {
	Status  int            `json:"status"`
	Headers map[string]any `json:"headers"`
	Data    any            `json:"data"`
}

// httpRequestBlock performs one HTTP call and returns the parsed response.
// The response body is decoded as JSON when it parses, text otherwise.
func httpRequestBlock() block.Block {
	return block.New("http.request",
		func(ctx context.Context, in *block.Input, rc *block.RunContext) (map[string]any, error) {
			var s httpRequestSettings
			if err := block.DecodeSettings(in.Settings, &s); err != nil {
				return nil, err
			}
			if s.URL == "" {
				return nil, block.Configf("http.request requires 'url'")
			}
			rctx := renderContext(in)
			target, err := strictRender(s.URL, rctx)
			if err != nil {
				return nil, err
			}
			body, err := renderBody(s.Body, rctx)
			if err != nil {
				return nil, err
			}
			resp, herr := sendRequest(ctx, rc, requestSpec{
				Method:  s.Method,
				URL:     target,
				Headers: renderHeaders(s.Headers, rctx),
				Body:    body,
			})
			if herr != nil {
				return nil, herr
			}
			defer resp.Body.Close()
			raw, err := io.ReadAll(resp.Body)
			if err != nil {
				return nil, block.Remotef("http.request: read response: %v", err)
			}

			var data any
			if parsed, ok := parseJSONBody(raw); ok {
				data = parsed
			} else if text, ok := decodeTextBody(raw, resp.Header.Get("Content-Type")); ok {
				data = text
			} else {
				data = raw
			}
			return map[string]any{
				"status":  resp.StatusCode,
				"headers": flattenHeader(resp.Header),
				"data":    data,
			}, nil
		},
		block.WithSummary("Perform an HTTP request and return status, headers and parsed data"),
		block.WithSettings(httpRequestSettings{}),
		block.WithOutput(httpRequestOutput{}),
	)
}

type webGetSettings struct {
	Method          string            `json:"method,omitempty" jsonschema:"description=HTTP method; GET when empty"`
	URL             string            `json:"url" jsonschema:"description=Request URL; supports {{ }} expressions"`
	Headers         map[string]string `json:"headers,omitempty"`
	Body            any               `json:"body,omitempty"`
	FollowRedirects *bool             `json:"follow_redirects,omitempty" jsonschema:"description=Follow HTTP redirects; true when unset"`
	TimeoutSeconds  float64           `json:"timeout_seconds,omitempty" jsonschema:"description=Request timeout in seconds; 30 when unset"`
	ResponseMode    string            `json:"response_mode,omitempty" jsonschema:"description=Body handling,enum=auto,enum=json,enum=text,enum=bytes"`
}

type webGetOutput struct {
	Status       int            `json:"status"`
	Headers      map[string]any `json:"headers"`
	Data         any            `json:"data"`
	DataText     *string        `json:"data_text,omitempty"`
	DataJSON     any            `json:"data_json,omitempty"`
	ResponseMode string         `json:"response_mode"`
}

// webGetBlock is the richer HTTP fetcher: it honors a response mode, falls
// back across parse strategies and logs the request and response.
func webGetBlock() block.Block {
	return block.New("web.get",
		func(ctx context.Context, in *block.Input, rc *block.RunContext) (map[string]any, error) {
			var s webGetSettings
			if err := block.DecodeSettings(in.Settings, &s); err != nil {
				return nil, err
			}
			if s.URL == "" {
				return nil, block.Configf("web.get requires 'url'")
			}
			mode := s.ResponseMode
			if mode == "" {
				mode = "auto"
			}
			switch mode {
			case "auto", "json", "text", "bytes":
			default:
				return nil, block.Configf("web.get: unknown response_mode %q", mode)
			}
			rctx := renderContext(in)
			target, err := strictRender(s.URL, rctx)
			if err != nil {
				return nil, err
			}
			body, err := renderBody(s.Body, rctx)
			if err != nil {
				return nil, err
			}
			timeout := 30 * time.Second
			if s.TimeoutSeconds > 0 {
				timeout = time.Duration(s.TimeoutSeconds * float64(time.Second))
			}
			rc.Info(in.NodeID, "web.get: sending "+requestMethod(s.Method)+" "+target, map[string]any{
				"method":          requestMethod(s.Method),
				"url":             target,
				"headers":         s.Headers,
				"body_preview":    bodyPreview(body),
				"timeout_seconds": timeout.Seconds(),
				"response_mode":   mode,
			})

			tctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			resp, herr := sendRequest(tctx, rc, requestSpec{
				Method:         s.Method,
				URL:            target,
				Headers:        renderHeaders(s.Headers, rctx),
				Body:           body,
				StopOnRedirect: s.FollowRedirects != nil && !*s.FollowRedirects,
			})
			if herr != nil {
				return nil, herr
			}
			defer resp.Body.Close()
			raw, err := io.ReadAll(resp.Body)
			if err != nil {
				if errors.Is(tctx.Err(), context.DeadlineExceeded) {
					return nil, block.Timeoutf("web.get: request timed out after %s", timeout)
				}
				return nil, block.Remotef("web.get: read response: %v", err)
			}

			out := parseResponseBody(raw, resp.Header.Get("Content-Type"), mode)
			out["status"] = resp.StatusCode
			out["headers"] = flattenHeader(resp.Header)
			rc.Info(in.NodeID, "web.get: received "+render.Stringify(resp.StatusCode), map[string]any{
				"status":        resp.StatusCode,
				"response_mode": out["response_mode"],
			})
			return out, nil
		},
		block.WithSummary("HTTP fetch with parsed outputs: status, headers, data, data_text, data_json"),
		block.WithSettings(webGetSettings{}),
		block.WithOutput(webGetOutput{}),
	)
}

// requestSpec is the normalized request both HTTP blocks hand to
// sendRequest.
type requestSpec struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    any

	// StopOnRedirect disables redirect following.
	StopOnRedirect bool
}

func requestMethod(m string) string {
	if m == "" {
		return http.MethodGet
	}
	return strings.ToUpper(m)
}

// renderBody renders string bodies strictly and string leaves of
// structured bodies permissively.
func renderBody(body any, rctx render.Context) (any, error) {
	switch t := body.(type) {
	case nil:
		return nil, nil
	case string:
		return strictRender(t, rctx)
	default:
		return render.DeepRender(body, rctx), nil
	}
}

func renderHeaders(headers map[string]string, rctx render.Context) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		out[k] = render.Render(v, rctx)
	}
	return out
}

// sendRequest issues the HTTP call and classifies transport failures into
// the block error taxonomy.
func sendRequest(ctx context.Context, rc *block.RunContext, spec requestSpec) (*http.Response, *block.Error) {
	var reader io.Reader
	contentType := ""
	switch t := spec.Body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(t)
	case []byte:
		reader = bytes.NewReader(t)
	default:
		encoded, err := json.Marshal(t)
		if err != nil {
			return nil, block.Internalf("encode request body: %v", err)
		}
		reader = bytes.NewReader(encoded)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, requestMethod(spec.Method), spec.URL, reader)
	if err != nil {
		return nil, block.Configf("invalid request: %v", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range spec.Headers {
		req.Header.Set(k, v)
	}

	client := rc.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	if spec.StopOnRedirect {
		clone := *client
		clone.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
		client = &clone
	}

	resp, err := client.Do(req)
	if err != nil {
		var uerr *url.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &uerr) && uerr.Timeout()) {
			return nil, block.Timeoutf("%s %s timed out", requestMethod(spec.Method), spec.URL)
		}
		return nil, block.Remotef("%s %s: %v", requestMethod(spec.Method), spec.URL, err)
	}
	return resp, nil
}

// parseResponseBody applies the requested response mode with fallbacks:
// json falls back to text then bytes, text to json then bytes.
func parseResponseBody(raw []byte, contentType, mode string) map[string]any {
	out := map[string]any{}
	asJSON := func() bool {
		parsed, ok := parseJSONBody(raw)
		if !ok {
			return false
		}
		out["data_json"] = parsed
		out["data"] = parsed
		out["response_mode"] = "json"
		return true
	}
	asText := func() bool {
		text, ok := decodeTextBody(raw, contentType)
		if !ok {
			return false
		}
		out["data_text"] = text
		out["data"] = text
		out["response_mode"] = "text"
		return true
	}
	asBytes := func() {
		out["data"] = raw
		out["response_mode"] = "bytes"
	}

	switch mode {
	case "json":
		if !asJSON() && !asText() {
			asBytes()
		}
	case "text":
		if !asText() && !asJSON() {
			asBytes()
		}
	case "bytes":
		asBytes()
	default: // auto
		if !asJSON() && !asText() {
			asBytes()
		}
	}
	return out
}

func parseJSONBody(raw []byte) (any, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, false
	}
	var v any
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return nil, false
	}
	return v, true
}

// decodeTextBody decodes the body to a UTF-8 string, honoring the charset
// parameter of the content type when one is declared.
func decodeTextBody(raw []byte, contentType string) (string, bool) {
	charset := ""
	if contentType != "" {
		if _, params, err := mime.ParseMediaType(contentType); err == nil {
			charset = params["charset"]
		}
	}
	if charset == "" || strings.EqualFold(charset, "utf-8") {
		if utf8.Valid(raw) {
			return string(raw), true
		}
		if charset == "" {
			return "", false
		}
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return "", false
	}
	decoded, _, err := transform.Bytes(enc.NewDecoder(), raw)
	if err != nil {
		return "", false
	}
	return string(decoded), true
}

func flattenHeader(h http.Header) map[string]any {
	out := make(map[string]any, len(h))
	for k, vals := range h {
		out[strings.ToLower(k)] = strings.Join(vals, ", ")
	}
	return out
}

func bodyPreview(body any) any {
	switch t := body.(type) {
	case nil:
		return nil
	case string:
		if len(t) > 500 {
			return t[:500]
		}
		return t
	default:
		return body
	}
}
