package docker

import (
	"strings"
)

const (
	crlf            = "\r\n"
	headerSeparator = "\r\n\r\n"
)

// FormatRequest renders a bodyless HTTP/1.1 request. Connection: close is
// always sent, so the daemon ends the stream after one response.
func FormatRequest(method Method, path, query, host string) []byte {
	path = strings.TrimPrefix(path, "/")
	query = strings.TrimPrefix(query, "?")

	var b strings.Builder
	b.Grow(len(path) + len(query) + len(host) + 64)

	b.WriteString(method.String())
	b.WriteString(" /")
	b.WriteString(path)
	if query != "" {
		b.WriteByte('?')
		b.WriteString(query)
	}
	b.WriteString(" HTTP/1.1" + crlf)
	b.WriteString("Host: ")
	b.WriteString(host)
	b.WriteString(crlf)
	b.WriteString("Connection: close" + crlf)
	b.WriteString(crlf)

	return []byte(b.String())
}
