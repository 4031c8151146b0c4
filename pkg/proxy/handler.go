package proxy

import (
	"bytes"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/getmockd/interceptd/pkg/httputil"
	"github.com/getmockd/interceptd/pkg/metrics"
	"github.com/getmockd/interceptd/pkg/plugin"
)

// handleHTTP relays a regular HTTP request.
func (p *Proxy) handleHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	body, err := p.readBody(r)
	if err != nil {
		if errors.Is(err, ErrBodyTooLarge) {
			httputil.WriteError(w, http.StatusRequestEntityTooLarge, "Request Entity Too Large", err.Error())
			p.metrics.ObserveRequest(r.Method, metrics.OutcomeError, http.StatusRequestEntityTooLarge, time.Since(start))
			return
		}
		p.log.Warn("failed to read request body", "method", r.Method, "url", r.URL.RequestURI(), "error", err)
		httputil.WriteBadRequest(w, "Bad Request", "failed to read request body")
		p.metrics.ObserveRequest(r.Method, metrics.OutcomeError, http.StatusBadRequest, time.Since(start))
		return
	}

	d := p.executor.RunRequest(r.Context(), r, body)
	for _, perr := range d.Errors() {
		p.log.Debug("plugin error recorded", "plugin", perr.Plugin, "error", perr.Message)
		p.metrics.PluginError(perr.Plugin, string(perr.Stage))
	}

	if d.Action == plugin.ActionMock && d.Mock != nil {
		status := writeMock(w, d.Mock)
		p.log.Debug("mocked", "method", r.Method, "url", r.URL.RequestURI(), "status", status, "stoppedBy", d.StoppedBy())
		p.metrics.ObserveRequest(r.Method, metrics.OutcomeMock, status, time.Since(start))
		return
	}

	resp, sent, err := p.forwardRequest(r, body, d)
	if err != nil {
		p.log.Warn("upstream request failed", "method", r.Method, "url", r.URL.RequestURI(), "error", err)
		httputil.WriteBadGateway(w, "Bad Gateway", err.Error())
		p.metrics.UpstreamError()
		p.metrics.ObserveRequest(r.Method, metrics.OutcomeError, http.StatusBadGateway, time.Since(start))
		return
	}
	defer func() { _ = resp.Body.Close() }()

	mode := d.RelayMode()
	status, outcome := resp.StatusCode, metrics.OutcomeForward
	if mode == plugin.RelayBuffer && d.ModifyResponse != nil {
		var ok bool
		if status, ok = p.relayBuffered(w, r, resp, sent, d.ModifyResponse); !ok {
			outcome = metrics.OutcomeError
		}
	} else {
		p.relayStream(w, resp)
	}

	p.log.Debug("proxied", "method", r.Method, "url", r.URL.RequestURI(), "status", status, "buffered", mode == plugin.RelayBuffer, "duration", time.Since(start))
	p.metrics.ObserveRequest(r.Method, outcome, status, time.Since(start))
}

func (p *Proxy) readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	defer func() { _ = r.Body.Close() }()
	data, err := io.ReadAll(io.LimitReader(r.Body, p.maxBodySize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > p.maxBodySize {
		return nil, ErrBodyTooLarge
	}
	return data, nil
}

// forwardRequest sends the buffered request upstream. It returns the
// response and the body that was actually sent.
func (p *Proxy) forwardRequest(r *http.Request, body []byte, d *plugin.Decision) (*http.Response, []byte, error) {
	if p.targets == nil {
		return nil, nil, ErrNoTarget
	}
	target, err := p.targets.Target()
	if err != nil {
		return nil, nil, err
	}
	targetURL := UpstreamURL(target.URL, r.URL)

	if d.ModifyRequest != nil && d.ModifyRequest.Body != nil {
		body = d.ModifyRequest.Body
	}

	outReq, err := http.NewRequestWithContext(r.Context(), r.Method, targetURL.String(), bytes.NewReader(body))
	if err != nil {
		return nil, nil, &UpstreamError{Method: r.Method, URL: targetURL.String(), Err: err}
	}
	outReq.ContentLength = int64(len(body))
	if len(body) == 0 {
		outReq.Body = http.NoBody
	}

	copyHeaders(outReq.Header, r.Header)
	removeHopByHopHeaders(outReq.Header)
	outReq.Header.Del("Content-Length")
	if d.RelayMode() == plugin.RelayBuffer {
		// Let the transport negotiate and decode compression so transforms
		// see plain bodies.
		outReq.Header.Del("Accept-Encoding")
	}

	// Precedence: client headers < plugin headers < configured headers.
	if d.ModifyRequest != nil {
		setHeaders(outReq.Header, d.ModifyRequest.Headers)
	}
	setHeaders(outReq.Header, target.Headers)

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		appendForwardedFor(outReq.Header, host)
	}
	outReq.Header.Set("X-Forwarded-Host", r.Host)
	if outReq.Header.Get("X-Forwarded-Proto") == "" {
		outReq.Header.Set("X-Forwarded-Proto", scheme(r))
	}
	outReq.Host = targetURL.Host

	resp, err := p.client.Do(outReq)
	if err != nil {
		return nil, nil, &UpstreamError{Method: r.Method, URL: targetURL.String(), Err: err}
	}
	return resp, body, nil
}

// relayStream copies the upstream response as it arrives.
func (p *Proxy) relayStream(w http.ResponseWriter, resp *http.Response) {
	header := w.Header()
	copyHeaders(header, resp.Header)
	removeHopByHopHeaders(header)
	w.WriteHeader(resp.StatusCode)

	rc := http.NewResponseController(w)
	buf := make([]byte, 32*1024)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return
			}
			_ = rc.Flush()
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				p.log.Warn("upstream stream interrupted", "error", err)
			}
			return
		}
	}
}

// relayBuffered reads the whole upstream body, applies the transform once
// and writes the patched response. It returns the status written and
// whether the transform completed.
func (p *Proxy) relayBuffered(w http.ResponseWriter, r *http.Request, resp *http.Response, sent []byte, transform plugin.ResponseTransform) (int, bool) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		p.log.Warn("failed to read upstream response", "url", r.URL.RequestURI(), "error", err)
		httputil.WriteBadGateway(w, "Proxy Response Error", err.Error())
		return http.StatusBadGateway, false
	}

	header := resp.Header.Clone()
	removeHopByHopHeaders(header)
	meta := &plugin.ResponseMeta{
		StatusCode:  resp.StatusCode,
		Header:      header,
		Request:     r,
		RequestBody: sent,
	}

	patch, err := applyTransform(transform, meta, body)
	if err != nil {
		p.log.Warn("response transform failed", "url", r.URL.RequestURI(), "error", err)
		httputil.WriteBadGateway(w, "Proxy Response Error", err.Error())
		return http.StatusBadGateway, false
	}

	status := resp.StatusCode
	bodyChanged := false
	if patch != nil {
		if patch.StatusCode != 0 {
			status = patch.StatusCode
		}
		setHeaders(header, patch.Headers)
		if patch.Body != nil {
			body = patch.Body
			bodyChanged = true
			header.Del("Content-Encoding")
		}
	}

	switch {
	case bodyless(r.Method, status):
		// Content-Length describes the entity here, not the bytes sent.
		body = nil
	case bodyChanged || header.Get("Content-Length") == "":
		// The transport drops Content-Length when it decompresses.
		header.Set("Content-Length", strconv.Itoa(len(body)))
	}
	httputil.WriteRaw(w, status, header, body)
	return status, true
}

// bodyless reports responses that never carry a body.
func bodyless(method string, status int) bool {
	return method == http.MethodHead ||
		status == http.StatusNoContent ||
		status == http.StatusNotModified ||
		(status >= 100 && status < 200)
}

func applyTransform(transform plugin.ResponseTransform, meta *plugin.ResponseMeta, body []byte) (patch *plugin.ResponsePatch, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			patch, err = nil, errors.New("response transform panicked")
		}
	}()
	return transform(meta, body)
}

func writeMock(w http.ResponseWriter, m *plugin.MockResponse) int {
	status := m.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	header := make(http.Header, len(m.Headers))
	setHeaders(header, m.Headers)
	httputil.WriteBody(w, status, header, m.Body)
	return status
}

// UpstreamURL joins the request path and query onto the target base URL.
func UpstreamURL(target *url.URL, in *url.URL) *url.URL {
	out := *target
	out.Path = joinPath(target.Path, in.Path)
	if target.RawPath != "" || in.RawPath != "" {
		out.RawPath = joinPath(target.EscapedPath(), in.EscapedPath())
	}
	switch {
	case target.RawQuery == "":
		out.RawQuery = in.RawQuery
	case in.RawQuery != "":
		out.RawQuery = target.RawQuery + "&" + in.RawQuery
	}
	out.Fragment = ""
	return &out
}

func joinPath(a, b string) string {
	switch {
	case a == "" || a == "/":
		if b == "" {
			return "/"
		}
		return b
	case b == "" || b == "/":
		return a
	}
	return strings.TrimSuffix(a, "/") + "/" + strings.TrimPrefix(b, "/")
}

// copyHeaders copies headers from src to dst.
func copyHeaders(dst, src http.Header) {
	for key, values := range src {
		for _, value := range values {
			dst.Add(key, value)
		}
	}
}

func setHeaders(dst http.Header, headers map[string]string) {
	for k, v := range headers {
		dst.Set(k, v)
	}
}

// removeHopByHopHeaders removes headers that should not be forwarded,
// including any listed in Connection.
func removeHopByHopHeaders(h http.Header) {
	for _, v := range h.Values("Connection") {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				h.Del(name)
			}
		}
	}

	hopByHopHeaders := []string{
		"Connection",
		"Keep-Alive",
		"Proxy-Authenticate",
		"Proxy-Authorization",
		"Proxy-Connection",
		"TE",
		"Trailer",
		"Transfer-Encoding",
		"Upgrade",
	}
	for _, header := range hopByHopHeaders {
		h.Del(header)
	}
}

func appendForwardedFor(h http.Header, ip string) {
	if prior := h.Get("X-Forwarded-For"); prior != "" {
		ip = prior + ", " + ip
	}
	h.Set("X-Forwarded-For", ip)
}

func scheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	return "http"
}
