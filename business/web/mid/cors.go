package mid

import (
	"context"
	"net/http"

	"github.com/ardanlabs/merklechain/foundation/web"
)

// Set of values the node advertises to browsers calling the chain API.
const (
	corsMethods = "GET, POST, OPTIONS"
	corsHeaders = "Origin, Accept, Content-Type, Content-Length, Accept-Encoding"
)

// Cors lets a browser served from origin read the chain and submit batches.
// The preflight OPTIONS route only needs these headers to answer.
func Cors(origin string) web.Middleware {
	return func(next web.Handler) web.Handler {
		return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			hdr := w.Header()
			hdr.Set("Access-Control-Allow-Origin", origin)
			hdr.Set("Access-Control-Allow-Methods", corsMethods)
			hdr.Set("Access-Control-Allow-Headers", corsHeaders)

			return next(ctx, w, r)
		}
	}
}
