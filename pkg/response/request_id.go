package response

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
)

// RequestIDMiddleware ensures every request carries a request ID and
// echoes it on the response. Downstream code reads it back through
// RequestIDFromRequest.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := RequestIDFromRequest(r)
		if reqID == "" {
			reqID = newRequestID()
		}
		if reqID != "" {
			r.Header.Set("X-Request-ID", reqID)
			w.Header().Set("X-Request-ID", reqID)
		}
		next.ServeHTTP(w, r)
	})
}

func newRequestID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return hex.EncodeToString(buf)
}
