// Package web holds the static page served by the single-segment HTTP
// responder and the fixed response headers.
package web

import (
	"bytes"
	_ "embed"
	"fmt"
	"strconv"

	"github.com/klauspost/compress/gzip"
)

// Fixed response headers.
const (
	SiteHeader   = "HTTP/1.1 200 OK\r\nContent-Type: text/html\r\nContent-Encoding: gzip\r\nConnection: close\r\n\r\n"
	StatusHeader = "HTTP/1.1 200 OK\r\nContent-Type: application/json\r\nConnection: close\r\n\r\n"
)

//go:embed index.html
var indexHTML []byte

// Site is the pre-compressed page with its header.
type Site struct {
	response []byte
}

// NewSite compresses the embedded page once.
func NewSite() (*Site, error) {
	return NewSiteFrom(indexHTML)
}

// NewSiteFrom compresses page.
func NewSiteFrom(page []byte) (*Site, error) {
	var buf bytes.Buffer
	buf.WriteString(SiteHeader)
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(page); err != nil {
		return nil, fmt.Errorf("compress page: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("compress page: %w", err)
	}
	return &Site{response: buf.Bytes()}, nil
}

// Response returns the full HTTP response, header included.
func (s *Site) Response() []byte { return s.response }

// Index returns the uncompressed page.
func Index() []byte { return indexHTML }

// AppendLEDJSON appends {"led":<level>} to dst.
func AppendLEDJSON(dst []byte, level bool) []byte {
	dst = append(dst, `{"led":`...)
	dst = strconv.AppendBool(dst, level)
	return append(dst, '}')
}

// AppendStatus appends the full status response to dst.
func AppendStatus(dst []byte, level bool) []byte {
	dst = append(dst, StatusHeader...)
	return AppendLEDJSON(dst, level)
}
