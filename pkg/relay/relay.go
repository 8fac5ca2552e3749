// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package relay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-core-stack/removebg-relay/pkg/auth"
	"github.com/go-core-stack/removebg-relay/pkg/config"
)

const (
	// FieldImageFile is the multipart field carrying the image, both inbound
	// and towards the upstream API.
	FieldImageFile = "image_file"

	fieldSize       = "size"
	sizeAuto        = "auto"
	defaultFilename = "file.jpg"
	contentTypePNG  = "image/png"
	serverErrorText = "Server error"

	// multipartMemory is how much of an upload is held in memory before the
	// multipart parser spills to temporary files.
	multipartMemory = 32 << 20
	maxLogBody      = 64 * 1024
)

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// Upload is the image received from a client. It lives for one request.
type Upload struct {
	Filename string
	Data     []byte
}

// Result is a successful upstream answer.
type Result struct {
	ContentType string
	Body        []byte
}

// Relay forwards uploads to the background-removal API and returns the
// processed image.
type Relay struct {
	// cfg keeps runtime knobs such as the upstream URL and upload cap.
	cfg config.Config
	// client performs outbound HTTP requests with tuned transport settings.
	client *http.Client
	// injector attaches the API key to every outbound request.
	injector *auth.KeyInjector
	// logger emits structured logs for observability.
	logger zerolog.Logger
	// upstream is the parsed endpoint each upload is posted to.
	upstream *url.URL
}

// New constructs a Relay backed by an http.Client configured with connection
// pooling defaults and the provided runtime configuration.
func New(cfg config.Config) (*Relay, error) {
	if cfg.Upstream == nil {
		return nil, errors.New("upstream url must be set")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("api key must be set")
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	// A zero timeout leaves the round trip bounded only by the inbound request context.
	client := &http.Client{
		Timeout:   cfg.RequestTimeout,
		Transport: transport,
	}

	upstream := *cfg.Upstream

	return &Relay{
		cfg:      cfg,
		client:   client,
		injector: auth.NewKeyInjector(cfg.APIKey),
		logger:   log.With().Str("component", "relay").Logger(),
		upstream: &upstream,
	}, nil
}

// ServeHTTP reads the uploaded image, forwards it upstream and writes the
// processed PNG, or the matching error response, back to the caller.
func (rl *Relay) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	event := rl.logger.With().
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Str("remote_addr", r.RemoteAddr).
		Logger()

	upload, err := rl.readUpload(w, r)
	if err != nil {
		rl.fail(w, event, err, start)
		return
	}

	result, err := rl.Forward(r.Context(), upload)
	if err != nil {
		rl.fail(w, event, err, start)
		return
	}

	w.Header().Set("Content-Type", contentTypePNG)
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Body)))
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write(result.Body); err != nil {
		event.Error().
			Err(err).
			Dur("duration", time.Since(start)).
			Msg("write image failed")
		return
	}

	event.Info().
		Str("filename", upload.Filename).
		Int("upload_bytes", len(upload.Data)).
		Int("image_bytes", len(result.Body)).
		Str("upstream_content_type", result.ContentType).
		Dur("duration", time.Since(start)).
		Msg("image relayed")
}

// Forward posts the upload to the upstream API and returns the processed
// image. Non-2xx answers come back as *UpstreamError, failures to complete
// the round trip as *TransportError.
func (rl *Relay) Forward(ctx context.Context, upload Upload) (Result, error) {
	body, contentType, err := encodeUpload(upload)
	if err != nil {
		return Result{}, fmt.Errorf("encode upstream payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rl.upstream.String(), body)
	if err != nil {
		return Result{}, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	if err := rl.injector.Attach(req); err != nil {
		return Result{}, fmt.Errorf("attach credential: %w", err)
	}

	resp, err := rl.client.Do(req)
	if err != nil {
		return Result{}, &TransportError{Cause: err}
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			rl.logger.Error().
				Err(closeErr).
				Msg("close upstream response body failed")
		}
	}()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, &TransportError{Cause: fmt.Errorf("read upstream body: %w", err)}
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return Result{}, &UpstreamError{Status: resp.StatusCode, Body: string(payload)}
	}

	return Result{
		ContentType: resp.Header.Get("Content-Type"),
		Body:        payload,
	}, nil
}

// readUpload extracts the image_file part from the inbound multipart body.
func (rl *Relay) readUpload(w http.ResponseWriter, r *http.Request) (Upload, error) {
	if rl.cfg.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, rl.cfg.MaxUploadBytes)
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return Upload{}, uploadTooLarge(maxBytesErr.Limit, err)
		}
		return Upload{}, missingFile(err)
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			rl.logger.Warn().Err(err).Msg("remove multipart temp files failed")
		}
	}()

	file, header, err := r.FormFile(FieldImageFile)
	if err != nil {
		return Upload{}, missingFile(err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return Upload{}, fmt.Errorf("read upload: %w", err)
	}

	return Upload{Filename: header.Filename, Data: data}, nil
}

// fail logs err and writes the response its class calls for.
func (rl *Relay) fail(w http.ResponseWriter, event zerolog.Logger, err error, start time.Time) {
	status := StatusOf(err)

	var (
		clientErr   *ClientInputError
		upstreamErr *UpstreamError
	)
	switch {
	case errors.As(err, &clientErr):
		event.Warn().
			Err(err).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Msg("rejected upload")
		writeText(w, status, clientErr.Message)
	case errors.As(err, &upstreamErr):
		logged := upstreamErr.Body
		if len(logged) > maxLogBody {
			logged = logged[:maxLogBody]
		}
		event.Warn().
			Int("status", status).
			Str("upstream_body", logged).
			Dur("duration", time.Since(start)).
			Msg("upstream returned error")
		writeText(w, status, upstreamErr.Message())
	default:
		event.Error().
			Err(err).
			Dur("duration", time.Since(start)).
			Msg("request failed")
		writeText(w, status, serverErrorText)
	}
}

// encodeUpload builds the upstream multipart body: the fixed size parameter
// followed by the image under image_file.
func encodeUpload(upload Upload) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	if err := mw.WriteField(fieldSize, sizeAuto); err != nil {
		return nil, "", fmt.Errorf("write %s field: %w", fieldSize, err)
	}

	filename := upload.Filename
	if strings.TrimSpace(filename) == "" {
		filename = defaultFilename
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		FieldImageFile, quoteEscaper.Replace(filename)))
	h.Set("Content-Type", http.DetectContentType(upload.Data))

	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("create %s part: %w", FieldImageFile, err)
	}
	if _, err := part.Write(upload.Data); err != nil {
		return nil, "", fmt.Errorf("write %s part: %w", FieldImageFile, err)
	}

	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}

	return &buf, mw.FormDataContentType(), nil
}

func writeText(w http.ResponseWriter, status int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, text)
}
