package server

import (
	"net/http"

	"github.com/DSMD-D/primor/server/application"
	"github.com/DSMD-D/primor/server/domain"
	"github.com/DSMD-D/primor/server/handler"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Route は HTTP のルート表を組み立てます。/ws 以外のリクエストはトレースされます。
func Route(engine *application.Engine, endpoint domain.EndpointConfig) (http.Handler, error) {
	evolution, err := handler.NewEvolutionHandler(engine.Catalog())
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("GET /ws", handler.NewSessionGateway(engine, endpoint))
	mux.Handle("GET /api/state", handler.NewStateHandler(engine))
	mux.Handle("GET /api/evolution", evolution)
	mux.Handle("GET /healthz", handler.NewHealthHandler(engine))
	mux.Handle("GET /{$}", handler.NewIndexHandler())

	return otelhttp.NewHandler(mux, "primor",
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/ws"
		}),
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	), nil
}
