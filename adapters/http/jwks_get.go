package authhttp

import (
	"net/http"

	"github.com/lestrrat-go/jwx/v2/jwk"

	jwtkit "github.com/PaulFidika/accesskit/jwt"
)

// JWKSPath is where identity providers conventionally publish their keys.
const JWKSPath = "/.well-known/jwks.json"

// JWKSHandler serves a public key set. Only GET and HEAD are accepted.
func JWKSHandler(keys jwk.Set) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		jwtkit.ServeJWKS(w, r, keys)
	})
}
