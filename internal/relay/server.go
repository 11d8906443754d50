package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/alcoveio/alcove/internal/logging"
	"github.com/alcoveio/alcove/internal/protocol"
	"github.com/alcoveio/alcove/pkg/alcove"
)

// ChannelPath is where the workbench upgrades to the websocket channel.
const ChannelPath = "/channel"

// ServerConfig tunes the extension-host end of the channel.
type ServerConfig struct {
	// RequireToken rejects channel upgrades without the session token.
	RequireToken bool
	// CallTimeout bounds outbound calls; zero means DefaultCallTimeout.
	CallTimeout time.Duration
}

// Status is the /status payload.
type Status struct {
	Connected     bool                 `json:"connected"`
	SessionID     string               `json:"sessionId,omitempty"`
	ConnectedAt   time.Time            `json:"connectedAt,omitempty"`
	Registrations []StatusRegistration `json:"registrations"`
	Views         []StatusView         `json:"views"`
}

type StatusRegistration struct {
	ViewType                string `json:"viewType"`
	Extension               string `json:"extension,omitempty"`
	RetainContextWhenHidden bool   `json:"retainContextWhenHidden,omitempty"`
}

type StatusView struct {
	Handle   string `json:"handle"`
	ViewType string `json:"viewType"`
	Title    string `json:"title,omitempty"`
	Visible  bool   `json:"visible"`
}

// Server owns the extension-host end: the view host, the inbound router, and
// the single workbench session.
type Server struct {
	logger      zerolog.Logger
	router      *Router
	host        *alcove.ViewHost
	upgrader    websocket.Upgrader
	token       string
	requireAuth bool
	callTimeout time.Duration

	mu          sync.RWMutex
	session     *Peer
	sessionID   string
	connectedAt time.Time
}

// NewServer builds a Server with its own ViewHost wired through the session.
func NewServer(cfg ServerConfig, logger zerolog.Logger) (*Server, error) {
	token, err := GenerateToken()
	if err != nil {
		return nil, err
	}

	s := &Server{
		logger:      logger.With().Str("component", "relay-server").Logger(),
		token:       token,
		requireAuth: cfg.RequireToken,
		callTimeout: cfg.CallTimeout,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				return strings.Contains(origin, "127.0.0.1") || strings.Contains(origin, "localhost")
			},
		},
	}

	s.router = NewRouter(logger)
	s.host = alcove.NewViewHost(NewWorkbenchProxy(s), logger)
	if err := BindViewHost(s.router, s.host); err != nil {
		return nil, err
	}
	return s, nil
}

// ViewHost returns the host extensions register against.
func (s *Server) ViewHost() *alcove.ViewHost {
	return s.host
}

// AuthToken returns the token a workbench must present when RequireToken is
// set.
func (s *Server) AuthToken() string {
	return s.token
}

// Session implements SessionSource.
func (s *Server) Session() *Peer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

// SessionActive reports whether a workbench is connected.
func (s *Server) SessionActive() bool {
	return s.Session() != nil
}

// Handler returns the HTTP surface: health, status, and the channel upgrade.
// Mount it on a loopback or unix listener from Listen.
func (s *Server) Handler() http.Handler {
	router := chi.NewRouter()
	router.Get("/healthz", s.handleHealth)
	router.Get("/status", s.handleStatus)
	router.HandleFunc(ChannelPath, s.handleChannel)
	return router
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	status := Status{
		Registrations: make([]StatusRegistration, 0),
		Views:         make([]StatusView, 0),
	}

	s.mu.RLock()
	status.Connected = s.session != nil
	status.SessionID = s.sessionID
	status.ConnectedAt = s.connectedAt
	s.mu.RUnlock()

	for _, reg := range s.host.Registrations() {
		status.Registrations = append(status.Registrations, StatusRegistration{
			ViewType:                reg.ViewType,
			Extension:               reg.Extension,
			RetainContextWhenHidden: reg.RetainContextWhenHidden,
		})
	}
	for _, view := range s.host.Views() {
		status.Views = append(status.Views, StatusView{
			Handle:   view.Handle,
			ViewType: view.ViewType,
			Title:    view.Title,
			Visible:  view.Visible,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		s.logger.Debug().Err(err).Msg("status write failed")
	}
}

func (s *Server) handleChannel(w http.ResponseWriter, req *http.Request) {
	if s.requireAuth && !VerifyToken(req.Header.Get(AuthHeader), s.token) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if s.SessionActive() {
		http.Error(w, "workbench already connected", http.StatusConflict)
		return
	}

	conn, err := s.upgrader.Upgrade(w, req, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("channel upgrade failed")
		return
	}

	sessionID := uuid.NewString()
	peer := NewPeer(conn, s.router, s.callTimeout, s.logger.With().Str("session_id", sessionID).Logger())

	s.mu.Lock()
	if s.session != nil {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.session = peer
	s.sessionID = sessionID
	s.connectedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info().
		Str("session_id", sessionID).
		Str("remote", req.RemoteAddr).
		Msg("workbench connected")

	ctx := logging.WithContext(context.Background(), s.logger)
	go s.announceRegistrations(ctx, peer)

	runErr := peer.Run(ctx)

	s.mu.Lock()
	if s.session == peer {
		s.session = nil
		s.sessionID = ""
		s.connectedAt = time.Time{}
	}
	s.mu.Unlock()

	// Every live view belongs to the departed session.
	s.host.DisposeAll()

	event := s.logger.Info().Str("session_id", sessionID)
	if runErr != nil {
		event = event.Err(runErr)
	}
	event.Msg("workbench disconnected")
}

// announceRegistrations replays provider registrations made before the
// session existed.
func (s *Server) announceRegistrations(ctx context.Context, peer *Peer) {
	for _, reg := range s.host.Registrations() {
		_, err := peer.Call(ctx, protocol.MethodRegisterView, protocol.RegisterViewParams{
			ViewType:                reg.ViewType,
			Extension:               reg.Extension,
			RetainContextWhenHidden: reg.RetainContextWhenHidden,
		})
		if err != nil {
			s.logger.Warn().Err(err).Str("view_type", reg.ViewType).Msg("registration replay failed")
			return
		}
	}
}
