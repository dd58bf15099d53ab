package middleware

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/peerstake/internal/crypto"
	"github.com/alanyoungcy/peerstake/internal/domain"
)

// MaxBodyBytes caps signed request bodies.
const MaxBodyBytes = 1 << 20

type callerKey struct{}

// WithCaller returns a context carrying an authenticated identity.
func WithCaller(ctx context.Context, id domain.Identity) context.Context {
	return context.WithValue(ctx, callerKey{}, id)
}

// Caller returns the identity authenticated by Signature, if any.
func Caller(ctx context.Context) (domain.Identity, bool) {
	id, ok := ctx.Value(callerKey{}).(domain.Identity)
	return id, ok
}

// Signature returns middleware that authenticates the caller from the
// X-Peerstake-* headers. The signature covers method, path, timestamp and
// the exact body bytes; timestamps further than maxSkew from now are
// rejected. Each signed request is accepted once: its digest is claimed in
// guard for twice maxSkew, and a nil guard falls back to an in-process one.
// On success the caller's identity is stored in the request context and the
// body is replayed to the handler.
func Signature(maxSkew time.Duration, now func() time.Time, guard domain.ReplayGuard) func(http.Handler) http.Handler {
	if now == nil {
		now = time.Now
	}
	if guard == nil {
		guard = newLocalReplayGuard(now)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			addrHex := r.Header.Get(crypto.HeaderAddress)
			tsHex := r.Header.Get(crypto.HeaderTimestamp)
			sig := r.Header.Get(crypto.HeaderSignature)
			if addrHex == "" || tsHex == "" || sig == "" {
				writeUnauthorized(w, "missing signature headers")
				return
			}

			claimed, err := domain.ParseIdentity(addrHex)
			if err != nil {
				writeUnauthorized(w, "invalid address header")
				return
			}
			ts, err := strconv.ParseInt(tsHex, 10, 64)
			if err != nil {
				writeUnauthorized(w, "invalid timestamp header")
				return
			}
			if skew := now().Sub(time.Unix(ts, 0)); skew > maxSkew || skew < -maxSkew {
				writeUnauthorized(w, "request timestamp outside allowed skew")
				return
			}

			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large", "BodyTooLarge")
					return
				}
				writeJSONError(w, http.StatusBadRequest, "unreadable request body", "BadRequest")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			if err := crypto.VerifyRequest(claimed, r.Method, r.URL.Path, ts, body, sig); err != nil {
				writeUnauthorized(w, "invalid signature")
				return
			}

			digest := crypto.RequestDigest(r.Method, r.URL.Path, ts, body)
			fresh, err := guard.Claim(r.Context(), replayKey(claimed, digest), 2*maxSkew)
			if err != nil {
				writeJSONError(w, http.StatusServiceUnavailable, "replay check unavailable", "Unavailable")
				return
			}
			if !fresh {
				writeUnauthorized(w, "request already used")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), claimed)))
		})
	}
}

// replayKey keys on the signed digest rather than the signature bytes, so a
// re-encoded signature over the same request is still a replay.
func replayKey(id domain.Identity, digest []byte) string {
	return strings.ToLower(id.Hex()) + ":" + hex.EncodeToString(digest)
}

// writeUnauthorized sends a 401 response with a JSON error body.
func writeUnauthorized(w http.ResponseWriter, msg string) {
	writeJSONError(w, http.StatusUnauthorized, msg, "Unauthenticated")
}

func writeJSONError(w http.ResponseWriter, status int, msg, code string) {
	data, _ := json.Marshal(map[string]string{"error": msg, "code": code})
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}
