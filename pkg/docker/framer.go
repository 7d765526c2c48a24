package docker

import (
	"bytes"
	"fmt"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"

	"github.com/yugasun/teus/pkg/errors"
)

// Response is a raw daemon response split into its parts
type Response struct {
	StatusCode int
	Status     string
	Header     http.Header
	Body       []byte
}

// Chunked reports whether the response used chunked transfer-encoding
func (r *Response) Chunked() bool {
	return isChunked(r.Header)
}

// Frame returns only the content of raw: headers stripped and chunks unwrapped.
func Frame(raw []byte) ([]byte, error) {
	resp, err := ParseResponse(raw)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// ParseResponse splits raw on the first blank line, parses the status line and
// headers, then decodes the body according to Transfer-Encoding or
// Content-Length. raw is never modified.
func ParseResponse(raw []byte) (*Response, error) {
	pos := bytes.Index(raw, []byte(headerSeparator))
	if pos < 0 {
		return nil, errors.NewFrameError("docker", "no header/body separator in response", nil).
			WithDetail("raw", truncate(raw, 256))
	}
	headerBlock := string(raw[:pos])
	bodyBlock := raw[pos+len(headerSeparator):]

	lines := strings.Split(headerBlock, crlf)
	resp := &Response{Header: make(http.Header)}

	code, status, err := parseStatusLine(lines[0])
	if err != nil {
		return nil, err
	}
	resp.StatusCode = code
	resp.Status = status

	for _, line := range lines[1:] {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		resp.Header.Add(textproto.TrimString(key), textproto.TrimString(value))
	}

	switch {
	case isChunked(resp.Header):
		body, err := DecodeChunked(bodyBlock)
		if err != nil {
			return nil, err
		}
		resp.Body = body
	case resp.Header.Get("Content-Length") != "":
		body, err := limitBody(bodyBlock, resp.Header.Get("Content-Length"))
		if err != nil {
			return nil, err
		}
		resp.Body = body
	default:
		resp.Body = bytes.Clone(bodyBlock)
	}

	return resp, nil
}

func parseStatusLine(line string) (int, string, error) {
	proto, rest, ok := strings.Cut(line, " ")
	if !ok || !strings.HasPrefix(proto, "HTTP/") {
		return 0, "", errors.NewFrameError("docker", fmt.Sprintf("malformed status line %q", line), nil)
	}
	codeText, reason, _ := strings.Cut(rest, " ")
	code, err := strconv.Atoi(codeText)
	if err != nil || code < 100 || code > 999 {
		return 0, "", errors.NewFrameError("docker", fmt.Sprintf("invalid status code %q", codeText), err)
	}
	return code, strings.TrimSpace(codeText + " " + reason), nil
}

func isChunked(h http.Header) bool {
	for _, v := range h.Values("Transfer-Encoding") {
		if strings.Contains(strings.ToLower(v), "chunked") {
			return true
		}
	}
	return false
}

func limitBody(body []byte, value string) ([]byte, error) {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n < 0 {
		return nil, errors.NewFrameError("docker", fmt.Sprintf("invalid Content-Length %q", value), err)
	}
	if len(body) < n {
		return nil, errors.NewFrameError("docker",
			fmt.Sprintf("truncated body: got %d of %d bytes", len(body), n), nil)
	}
	return bytes.Clone(body[:n]), nil
}

// DecodeChunked unwraps a chunked body: each chunk is a hex size line, its
// payload and a CRLF, and the stream ends with a zero-size chunk. Chunk
// extensions and trailers are ignored.
func DecodeChunked(body []byte) ([]byte, error) {
	var out bytes.Buffer
	rest := body

	for {
		end := bytes.Index(rest, []byte(crlf))
		if end < 0 {
			return nil, errors.NewFrameError("docker", "chunk size line not terminated", nil)
		}
		sizeLine := string(rest[:end])
		rest = rest[end+len(crlf):]

		if ext := strings.IndexByte(sizeLine, ';'); ext >= 0 {
			sizeLine = sizeLine[:ext]
		}
		sizeLine = strings.TrimSpace(sizeLine)
		if sizeLine == "" || strings.TrimLeft(sizeLine, "0123456789abcdefABCDEF") != "" {
			return nil, errors.NewFrameError("docker", fmt.Sprintf("invalid chunk size %q", sizeLine), nil)
		}
		size, err := strconv.ParseInt(sizeLine, 16, 64)
		if err != nil {
			return nil, errors.NewFrameError("docker", fmt.Sprintf("invalid chunk size %q", sizeLine), err)
		}

		if size == 0 {
			return out.Bytes(), nil
		}

		if size > int64(len(rest))-int64(len(crlf)) {
			return nil, errors.NewFrameError("docker",
				fmt.Sprintf("chunk of %d bytes cut short after %d", size, len(rest)), nil)
		}
		out.Write(rest[:size])
		if !bytes.Equal(rest[size:size+int64(len(crlf))], []byte(crlf)) {
			return nil, errors.NewFrameError("docker", "chunk payload not followed by CRLF", nil)
		}
		rest = rest[size+int64(len(crlf)):]
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
