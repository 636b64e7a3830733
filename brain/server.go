package brain

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/simlink/simlink/sim/transport"
)

// Options configures the brain service.
type Options struct {
	// Policy produces step actions. Defaults to an empty ConstantPolicy.
	Policy Policy
	// InitParams is sent with every EpisodeStart in train mode. Predict
	// sessions never receive it.
	InitParams *transport.Message
	// EpisodeHorizon forces an EpisodeFinish after this many steps.
	// 0 means episodes end only when the client reports terminal.
	EpisodeHorizon int
	// MaxEpisodes unregisters a session after it completes this many
	// episodes. 0 means the session runs until the client disconnects.
	MaxEpisodes int
}

// session is the server-side view of one registered simulator.
type session struct {
	id            string
	name          string
	predict       bool
	episodeActive bool
	steps         int
	episodes      int
}

// Server hosts brain sessions over HTTP.
type Server struct {
	opts Options

	mu       sync.Mutex
	sessions map[string]*session
}

// NewServer returns a server with the given options.
func NewServer(opts Options) *Server {
	if opts.Policy == nil {
		opts.Policy = ConstantPolicy{}
	}
	return &Server{
		opts:     opts,
		sessions: make(map[string]*session),
	}
}

// Router builds the gin engine serving the session protocol.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.POST("/v1/sessions", s.register)
	r.POST("/v1/sessions/:id/exchange", s.exchange)
	r.DELETE("/v1/sessions/:id", s.unregister)
	return r
}

// ListenAndServe runs the service on addr until the listener fails.
func (s *Server) ListenAndServe(addr string) error {
	logrus.Infof("brain service listening on %s", addr)
	return s.Router().Run(addr)
}

type registerRequest struct {
	Name    string `json:"name" binding:"required"`
	Predict bool   `json:"predict"`
}

func (s *Server) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sess := &session{
		id:      uuid.NewString(),
		name:    req.Name,
		predict: req.Predict,
	}
	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()
	logrus.Infof("registered simulator %q (session=%s, predict=%v)", req.Name, sess.id, req.Predict)
	c.JSON(http.StatusOK, gin.H{"session_id": sess.id})
}

func (s *Server) exchange(c *gin.Context) {
	var outcome transport.ClientOutcome
	if err := c.ShouldBindJSON(&outcome); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[c.Param("id")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown session"})
		return
	}
	c.JSON(http.StatusOK, s.nextEvent(sess, &outcome))
}

func (s *Server) unregister(c *gin.Context) {
	s.mu.Lock()
	_, ok := s.sessions[c.Param("id")]
	delete(s.sessions, c.Param("id"))
	s.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

// nextEvent advances the server-side session state machine by one exchange.
// Called with s.mu held.
func (s *Server) nextEvent(sess *session, outcome *transport.ClientOutcome) *transport.ServerEvent {
	if outcome.Terminal && sess.episodeActive {
		// The client finished the episode on its side already.
		sess.episodeActive = false
		sess.steps = 0
		sess.episodes++
	} else if outcome.Halted && sess.episodeActive {
		// The client discarded an in-flight iteration (reconnect). Force
		// the episode closed so both sides restart from a clean boundary.
		sess.episodeActive = false
		sess.steps = 0
		sess.episodes++
		return &transport.ServerEvent{Type: transport.EventEpisodeFinish, Reason: "client halted"}
	}

	if s.opts.MaxEpisodes > 0 && sess.episodes >= s.opts.MaxEpisodes {
		return &transport.ServerEvent{Type: transport.EventUnregister, Reason: "episode budget exhausted"}
	}

	if !sess.episodeActive {
		sess.episodeActive = true
		sess.steps = 0
		ev := &transport.ServerEvent{Type: transport.EventEpisodeStart}
		if !sess.predict {
			ev.InitParams = s.opts.InitParams
		}
		return ev
	}

	if s.opts.EpisodeHorizon > 0 && sess.steps >= s.opts.EpisodeHorizon {
		sess.episodeActive = false
		sess.steps = 0
		sess.episodes++
		return &transport.ServerEvent{Type: transport.EventEpisodeFinish, Reason: "episode horizon reached"}
	}

	sess.steps++
	return &transport.ServerEvent{
		Type:   transport.EventStep,
		Action: s.opts.Policy.NextAction(outcome.State),
	}
}
