package web

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
)

// Brotli quality 4 keeps cluster feed responses fast to encode while still
// beating gzip on size.
const brotliQuality = 4

// encoderPools pools one writer type per supported Content-Encoding, reused
// across requests via Reset.
var encoderPools = map[string]*sync.Pool{
	"br": {New: func() any {
		return brotli.NewWriterLevel(io.Discard, brotliQuality)
	}},
	"gzip": {New: func() any {
		w, _ := gzip.NewWriterLevel(io.Discard, gzip.DefaultCompression)
		return w
	}},
}

type resettableEncoder interface {
	io.WriteCloser
	Reset(io.Writer)
}

// Compress negotiates brotli or gzip on the response, preferring brotli.
// Responses that already carry a Content-Encoding, and bodyless status codes,
// pass through unchanged.
func Compress(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		encoding := pickEncoding(r.Header.Get("Accept-Encoding"))
		if encoding == "" {
			next.ServeHTTP(w, r)
			return
		}

		// Strip Accept-Encoding so nothing downstream compresses a second
		// time. This middleware owns response compression.
		r = r.Clone(r.Context())
		r.Header.Del("Accept-Encoding")

		ew := &encodedWriter{ResponseWriter: w, encoding: encoding}
		defer ew.finish()
		next.ServeHTTP(ew, r)
	})
}

// pickEncoding returns "br", "gzip", or "" from an Accept-Encoding header.
// Quality values are ignored beyond presence.
func pickEncoding(header string) string {
	var hasGzip bool
	for part := range strings.SplitSeq(header, ",") {
		name, _, _ := strings.Cut(strings.TrimSpace(part), ";")
		switch strings.TrimSpace(name) {
		case "br":
			return "br"
		case "gzip":
			hasGzip = true
		}
	}
	if hasGzip {
		return "gzip"
	}
	return ""
}

// encodedWriter defers the compress-or-not decision to the first
// WriteHeader/Write, when the handler's own headers are visible.
type encodedWriter struct {
	http.ResponseWriter
	encoding string
	enc      resettableEncoder
	started  bool
}

func (ew *encodedWriter) WriteHeader(code int) {
	if ew.started {
		return
	}
	ew.started = true

	alreadyEncoded := ew.Header().Get("Content-Encoding") != ""
	bodyless := code == http.StatusNoContent || code == http.StatusNotModified
	if alreadyEncoded || bodyless {
		ew.ResponseWriter.WriteHeader(code)
		return
	}

	ew.Header().Set("Content-Encoding", ew.encoding)
	ew.Header().Del("Content-Length")
	ew.Header().Add("Vary", "Accept-Encoding")

	ew.enc = encoderPools[ew.encoding].Get().(resettableEncoder)
	ew.enc.Reset(ew.ResponseWriter)

	ew.ResponseWriter.WriteHeader(code)
}

func (ew *encodedWriter) Write(b []byte) (int, error) {
	if !ew.started {
		ew.WriteHeader(http.StatusOK)
	}
	if ew.enc != nil {
		return ew.enc.Write(b)
	}
	return ew.ResponseWriter.Write(b)
}

func (ew *encodedWriter) Flush() {
	if ew.enc != nil {
		if f, ok := ew.enc.(interface{ Flush() error }); ok {
			f.Flush()
		}
	}
	if f, ok := ew.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// finish closes the encoder, emitting the trailing compressed frame, and
// returns it to its pool.
func (ew *encodedWriter) finish() {
	if ew.enc == nil {
		return
	}
	ew.enc.Close()
	encoderPools[ew.encoding].Put(ew.enc)
	ew.enc = nil
}
