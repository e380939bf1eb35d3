package middleware

import (
	"context"
	"net/http"
)

// statusRecorder captures what a handler wrote so that outer middleware can
// log and measure it. Logging and HTTPMetrics each install one.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	bytes       int64
	wroteHeader bool

	// Filled in by UpdateResponseContext from inner handlers.
	errorCode string
	userID    string
}

func newStatusRecorder(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (sr *statusRecorder) WriteHeader(code int) {
	if sr.wroteHeader {
		return
	}
	sr.status = code
	sr.wroteHeader = true
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	sr.wroteHeader = true
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += int64(n)
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

// UpdateResponseContext copies the error code and user id held in ctx onto
// every statusRecorder wrapping w. Handlers call it because the contexts they
// derive are invisible to the middleware that logged the request.
func UpdateResponseContext(w http.ResponseWriter, ctx context.Context) {
	code, userID := GetErrorCode(ctx), GetUserID(ctx)
	if code == "" && userID == "" {
		return
	}
	for w != nil {
		if sr, ok := w.(*statusRecorder); ok {
			if code != "" {
				sr.errorCode = code
			}
			if userID != "" {
				sr.userID = userID
			}
		}
		u, ok := w.(interface{ Unwrap() http.ResponseWriter })
		if !ok {
			return
		}
		w = u.Unwrap()
	}
}
