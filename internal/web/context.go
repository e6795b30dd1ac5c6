package web

import (
	"net/http"

	"github.com/JonMunkholm/agrionboard/internal/core"
	webmw "github.com/JonMunkholm/agrionboard/internal/web/middleware"
)

// ActorHeader names the operator performing a request. It is recorded in
// record notes.
const ActorHeader = "X-Actor"

// requestMetadata puts the actor and client IP on the request context.
// Callers without an X-Actor header are identified by IP.
func requestMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := webmw.ClientIP(r)
		actor := r.Header.Get(ActorHeader)
		if actor == "" {
			actor = "ip:" + ip
		}
		ctx := core.ContextWithIPAddress(r.Context(), ip)
		ctx = core.ContextWithActor(ctx, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
