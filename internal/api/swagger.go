package api

import (
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/hibiken/asynqmon"
	httpSwagger "github.com/swaggo/http-swagger/v2"
)

// AsynqmonRoot is where the task queue dashboard is mounted.
const AsynqmonRoot = "/monitoring"

// SwaggerUIHandler returns a handler for Swagger UI
func SwaggerUIHandler() http.HandlerFunc {
	return httpSwagger.WrapHandler
}

// OpenAPISpecHandler returns a handler that redirects to the swagger spec JSON
func OpenAPISpecHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/swagger/doc.json", http.StatusTemporaryRedirect)
	}
}

// AsynqmonHandler returns the task queue dashboard for the Redis at redisAddr.
func AsynqmonHandler(redisAddr string) *asynqmon.HTTPHandler {
	return asynqmon.New(asynqmon.Options{
		RootPath:     AsynqmonRoot,
		RedisConnOpt: asynq.RedisClientOpt{Addr: redisAddr},
	})
}
