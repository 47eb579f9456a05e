package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ethcf/blobkit-proxy/jobcoordinator"
	"github.com/ethcf/blobkit-proxy/log"
)

const maxRequestBodyLog = 512

// Config holds the HTTP server's listen address.
type Config struct {
	Host string
	Port int
}

// API is the HTTP front end for the blob-submission core: a single
// submission endpoint, a health endpoint, and the /debug/vars queue
// counters endpoint. Everything
// beyond request parsing, error mapping, and response shaping is handled
// by the Coordinator.
type API struct {
	router      *chi.Mux
	coordinator *jobcoordinator.Coordinator
	server      *http.Server
	queueStats  *queueStatsVar
}

// New builds an API with its router fully wired; it does not start
// listening until Start is called.
func New(coordinator *jobcoordinator.Coordinator) *API {
	a := &API{coordinator: coordinator}
	a.initRouter()
	return a
}

// Router returns the chi router, exposed for testing.
func (a *API) Router() *chi.Mux {
	return a.router
}

func (a *API) initRouter() {
	a.router = chi.NewRouter()
	a.router.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}).Handler)
	a.router.Use(loggingMiddleware(maxRequestBodyLog))
	a.router.Use(middleware.Recoverer)
	a.router.Use(middleware.Throttle(100))
	a.router.Use(middleware.ThrottleBacklog(5000, 40000, 60*time.Second))
	a.router.Use(middleware.Timeout(45 * time.Second))

	log.Infow("register handler", "endpoint", HealthEndpoint, "method", "GET")
	a.router.Get(HealthEndpoint, a.health)
	log.Infow("register handler", "endpoint", BlobWriteEndpoint, "method", "POST")
	a.router.Post(BlobWriteEndpoint, a.writeBlob)
	log.Infow("register handler", "endpoint", DebugVarsEndpoint, "method", "GET")
	a.router.Get(DebugVarsEndpoint, a.debugVars)
}

// Start begins listening on host:port in the background.
func (a *API) Start(host string, port int) {
	a.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", host, port),
		Handler: a.router,
	}
	go func() {
		log.Infow("starting API server", "host", host, "port", port)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorw(err, "API server stopped unexpectedly")
		}
	}()
}

// Stop drains in-flight requests for up to the given grace period, then
// force-closes the listener.
func (a *API) Stop(grace time.Duration) error {
	if a.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := a.server.Shutdown(ctx); err != nil {
		return a.server.Close()
	}
	return nil
}
