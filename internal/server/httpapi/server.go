// Package httpapi exposes the gateway over HTTP: public auth endpoints and a
// bearer-protected session API, including the SSE completion proxy.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mlevkov/chatgate/internal/logging"
	"github.com/mlevkov/chatgate/internal/server/models"
	"github.com/mlevkov/chatgate/internal/server/services"
)

// UserProvider is the slice of UserService the HTTP layer needs.
type UserProvider interface {
	Register(ctx context.Context, req services.RegisterRequest) (*models.User, error)
	Login(ctx context.Context, loginID, password string) (string, *models.User, error)
	ResolveUser(ctx context.Context, userID string) (*models.User, error)
}

// SessionProvider is the slice of SessionService the HTTP layer needs.
type SessionProvider interface {
	Create(ctx context.Context, ownerID, name string, kind models.SessionKind) (*models.Session, error)
	Update(ctx context.Context, id, ownerID string, patch models.SessionPatch) (*models.Session, error)
	Archive(ctx context.Context, id, ownerID string) error
	List(ctx context.Context, ownerID string, req services.ListRequest) ([]*models.Session, error)
	Delete(ctx context.Context, ownerID string, kind models.SessionKind, ids []string) error
	Messages(ctx context.Context, sessionID, ownerID string) ([]*models.Message, error)
}

// CompletionProvider streams completion chunks for an owned session.
type CompletionProvider interface {
	Stream(ctx context.Context, sessionID, ownerID, question string) (<-chan services.Event, error)
}

// ExportProvider uploads transcripts and returns download links.
type ExportProvider interface {
	Export(ctx context.Context, sessionID, ownerID string) (string, string, error)
}

type HTTPServer struct {
	address     string
	logger      logging.Logger
	users       UserProvider
	sessions    SessionProvider
	completions CompletionProvider
	exports     ExportProvider
	jwtSecret   []byte
}

func NewHTTPServer(a string, l logging.Logger, us UserProvider, ss SessionProvider,
	cs CompletionProvider, es ExportProvider, secretKey string) (*HTTPServer, error) {
	return &HTTPServer{
		address:     a,
		logger:      l.With("module", "http_server"),
		users:       us,
		sessions:    ss,
		completions: cs,
		exports:     es,
		jwtSecret:   []byte(secretKey),
	}, nil
}

// Router builds the gin engine with all routes attached.
func (s *HTTPServer) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	api := r.Group("/api")
	api.POST("/auth/register", s.register)
	api.POST("/auth/login", s.login)

	authed := api.Group("", s.authRequired())
	authed.POST("/sessions", s.createSession)
	authed.GET("/sessions", s.listSessions)
	authed.DELETE("/sessions", s.deleteSessions)
	authed.PUT("/sessions/:id", s.updateSession)
	authed.POST("/sessions/:id/archive", s.archiveSession)
	authed.GET("/sessions/:id/messages", s.sessionMessages)
	authed.POST("/sessions/:id/completions", s.streamCompletion)
	authed.POST("/sessions/:id/export", s.exportSession)

	return r
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *HTTPServer) Run(ctx context.Context) error {

	srv := &http.Server{
		Addr:    s.address,
		Handler: s.Router(),
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "HTTP server shutdown error", "error", err.Error())
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}
