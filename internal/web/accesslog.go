package web

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/mileusna/useragent"
)

// statusWriter captures the status code and bytes written for the access log.
type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (sw *statusWriter) WriteHeader(code int) {
	if sw.status == 0 {
		sw.status = code
	}
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	if sw.status == 0 {
		sw.status = http.StatusOK
	}
	n, err := sw.ResponseWriter.Write(b)
	sw.bytes += int64(n)
	return n, err
}

func (sw *statusWriter) Flush() {
	if f, ok := sw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// AccessLog logs one line per request: method, path, status, size, duration,
// client IP, browser and OS parsed from the User-Agent, and country when a
// GeoIP database is loaded. geoip may be nil.
func AccessLog(logger *slog.Logger, geoip *GeoIP) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w}
			next.ServeHTTP(sw, r)

			if sw.status == 0 {
				sw.status = http.StatusOK
			}
			ip := clientIP(r)

			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"bytes", sw.bytes,
				"duration", time.Since(start).Round(time.Microsecond),
				"ip", ip,
			}
			if uaHeader := r.Header.Get("User-Agent"); uaHeader != "" {
				ua := useragent.Parse(uaHeader)
				if ua.Name != "" {
					attrs = append(attrs, "browser", ua.Name)
				}
				if ua.OS != "" {
					attrs = append(attrs, "os", ua.OS)
				}
				if ua.Bot {
					attrs = append(attrs, "bot", true)
				}
			}
			if geoip != nil {
				if loc, ok := geoip.Lookup(ip); ok {
					if loc.Country != "" {
						attrs = append(attrs, "country", loc.Country)
					}
					if loc.City != "" {
						attrs = append(attrs, "city", loc.City)
					}
				}
			}

			logger.Info("request", attrs...)
		})
	}
}
