// Package swagger mounts the interactive API browser. The contract it
// renders is the checked-in api/openapi.yml, served by the router at
// /openapi.yml, so the UI always matches the document the tests validate.
package swagger

import (
	"net/http"

	httpSwagger "github.com/swaggo/http-swagger"
)

func Handler() http.Handler {
	return httpSwagger.Handler(
		httpSwagger.URL("/openapi.yml"),
		httpSwagger.DeepLinking(true),
	)
}
