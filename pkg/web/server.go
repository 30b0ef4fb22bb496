// Package web exposes the bridge over HTTP: the media-stream websocket the
// telephony provider connects to, plus a small read-only API for sessions,
// tests, and finished reports.
package web

import (
	"context"
	"errors"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/google/uuid"

	"github.com/probelab/callprobe/internal/log"
	"github.com/probelab/callprobe/pkg/bridge"
	"github.com/probelab/callprobe/pkg/realtime"
	"github.com/probelab/callprobe/pkg/scenario"
	"github.com/probelab/callprobe/pkg/score"
	"github.com/probelab/callprobe/pkg/store"
	"github.com/probelab/callprobe/pkg/telephony"
)

// Deps are the collaborators the server wires into each call session.
type Deps struct {
	Registry   *bridge.Registry
	Tests      scenario.Store
	Objects    store.ObjectStore
	Scorer     score.Scorer
	Controller telephony.Controller

	// NewEndpoint builds the AI-side connection for one call.
	NewEndpoint func() (realtime.Endpoint, error)

	Options bridge.Options
}

// Server hosts the media-stream websocket and the inspection API.
type Server struct {
	app  *fiber.App
	deps Deps
}

func NewServer(deps Deps) *Server {
	s := &Server{deps: deps}

	app := fiber.New(fiber.Config{
		AppName:               "callprobe",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())

	app.Get("/healthz", s.handleHealth)

	api := app.Group("/api")
	api.Get("/sessions", s.handleListSessions)
	api.Get("/reports/:id", s.handleGetReport)
	api.Get("/tests", s.handleListTests)
	api.Post("/tests", s.handleCreateTest)

	app.Use("/media-stream", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/media-stream", websocket.New(s.handleMediaStream))

	s.app = app
	return s
}

// Listen blocks serving on the given address.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) handleListSessions(c *fiber.Ctx) error {
	return c.JSON(s.deps.Registry.List())
}

func (s *Server) handleGetReport(c *fiber.Ctx) error {
	data, err := s.deps.Objects.Get(c.Context(), store.ReportKey(c.Params("id")))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "report not found")
		}
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(data)
}

func (s *Server) handleListTests(c *fiber.Ctx) error {
	tests, err := s.deps.Tests.List(c.Context())
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(tests)
}

type createTestRequest struct {
	Persona  string `json:"persona"`
	Behavior string `json:"behavior"`
	Question string `json:"question"`
	Expected string `json:"expected"`
}

func (s *Server) handleCreateTest(c *fiber.Ctx) error {
	var req createTestRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.Persona == "" || req.Question == "" {
		return fiber.NewError(fiber.StatusBadRequest, "persona and question are required")
	}

	test := &scenario.Test{
		ID:       uuid.NewString(),
		Persona:  req.Persona,
		Behavior: req.Behavior,
		Question: req.Question,
		Expected: req.Expected,
	}
	if err := s.deps.Tests.Create(c.Context(), test); err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	return c.Status(fiber.StatusCreated).JSON(test)
}

// handleMediaStream owns one call from socket accept to teardown. The
// websocket conn carries no request context, so the call gets its own,
// cancelled when the handler unwinds.
func (s *Server) handleMediaStream(c *websocket.Conn) {
	stream := NewStream(c)
	defer stream.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.bridgeStream(ctx, stream)
}

// bridgeStream waits for the stream-start frame to learn the call and test
// identity, then runs a bridge session for the life of the connection.
func (s *Server) bridgeStream(ctx context.Context, stream *Stream) {
	startMsg, err := awaitStart(stream)
	if err != nil {
		log.Warn("web: media stream ended before start frame", "error", err)
		return
	}

	callID := startMsg.Start.CallSID
	testID := startMsg.Start.CustomParameters["test_id"]
	if callID == "" {
		log.Warn("web: start frame missing call sid")
		return
	}

	test, err := s.deps.Tests.Get(ctx, testID)
	if err != nil {
		log.Error("web: unknown test for call", "call", callID, "test", testID, "error", err)
		return
	}
	if err := s.deps.Tests.UpdateStatus(ctx, testID, scenario.StatusInProgress); err != nil {
		log.Warn("web: test status update failed", "call", callID, "test", testID, "error", err)
	}

	endpoint, err := s.deps.NewEndpoint()
	if err != nil {
		log.Error("web: endpoint setup failed", "call", callID, "error", err)
		return
	}

	handoff := bridge.NewHandoff(s.deps.Scorer, s.deps.Objects, s.deps.Tests)
	session := bridge.NewSession(callID, test, stream, endpoint, s.deps.Controller,
		s.deps.Objects, handoff, s.deps.Options)

	if err := s.deps.Registry.Add(session); err != nil {
		log.Warn("web: rejecting duplicate media stream", "call", callID, "error", err)
		return
	}
	defer s.deps.Registry.Remove(callID)

	// The session needs to see the start frame itself.
	stream.Pushback(startMsg)

	log.Info("web: bridging call", "call", callID, "test", testID)
	session.Run(ctx)
	log.Info("web: call finished", "call", callID, "state", session.State().String(),
		"report", handoff.ReportID())
}

// awaitStart reads until the start frame arrives, skipping the connected
// handshake frame.
func awaitStart(stream *Stream) (*telephony.Message, error) {
	for {
		msg, err := stream.Read()
		if err != nil {
			return nil, err
		}
		switch msg.Event {
		case telephony.EventStart:
			if msg.Start == nil {
				return nil, errors.New("web: start frame missing payload")
			}
			return msg, nil
		case telephony.EventConnected:
			continue
		case telephony.EventStop:
			return nil, errors.New("web: stream stopped before start")
		default:
			// Media before start has no session to go to.
			continue
		}
	}
}
