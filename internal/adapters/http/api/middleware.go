package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/EdinaDepner/CadenceCoach/pkg/logger"
	"github.com/EdinaDepner/CadenceCoach/pkg/metrics"
)

// RequestIDHeader carries the request id. A client-supplied value is kept.
const RequestIDHeader = "X-Request-ID"

// instrument wraps next with a request id, a server span continuing any W3C
// trace context, Prometheus metrics and an access log line. Failed requests
// are also counted by error class.
func (s *Server) instrument(endpoint string, next http.HandlerFunc) http.HandlerFunc {
	prop := propagation.TraceContext{}
	tracer := s.tracer

	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)

		ctx := prop.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := tracer.Start(ctx, "HTTP "+r.Method+" "+endpoint,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", r.Method),
				attribute.String("http.request.id", id),
			),
		)
		defer span.End()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r.WithContext(ctx))

		span.SetAttributes(attribute.Int("http.response.status_code", rec.status))
		if rec.status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(rec.status))
		}

		elapsed := time.Since(start)
		code := strconv.Itoa(rec.status)
		metrics.RecordHTTPRequest(endpoint, r.Method, code)
		metrics.RecordHTTPRequestDuration(endpoint, r.Method, code, float64(elapsed.Microseconds())/1000)

		fields := []logger.Field{
			logger.String("requestId", id),
			logger.String("endpoint", endpoint),
			logger.String("method", r.Method),
			logger.Int("status", rec.status),
			logger.Duration("latency", elapsed),
		}
		class := errorClass(rec.status)
		switch {
		case class == "":
			s.log.Debug(ctx, "request served", fields...)
		case rec.status >= http.StatusInternalServerError:
			metrics.RecordErrorByComponent("http_"+endpoint, class)
			s.log.Warn(ctx, "request failed", fields...)
		default:
			metrics.RecordErrorByComponent("http_"+endpoint, class)
			s.log.Debug(ctx, "request rejected", append(fields, logger.String("class", class))...)
		}
	}
}

// errorClass names the failure class of status, or "" for success. Classes
// follow the API error codes so dashboards can join on them.
func errorClass(status int) string {
	switch {
	case status < http.StatusBadRequest:
		return ""
	case status == http.StatusTooManyRequests:
		return "backpressure"
	case status == http.StatusConflict:
		return "conflict"
	case status == http.StatusServiceUnavailable:
		return "unavailable"
	case status == http.StatusNotFound:
		return "not_found"
	case status >= http.StatusInternalServerError:
		return "server_error"
	default:
		return "bad_request"
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status  int
	written bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.written {
		r.status = code
		r.written = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.written = true
	return r.ResponseWriter.Write(b)
}
