package swagger

import (
	"net/http"

	httpSwagger "github.com/swaggo/http-swagger"
)

const SpecURL = "/openapi.yml"

func Handler() http.Handler {
	return httpSwagger.Handler(
		httpSwagger.URL(SpecURL),
	)
}

// SpecHandler serves the raw OpenAPI document.
func SpecHandler(spec []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(spec)
	}
}
