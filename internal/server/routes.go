package server

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/coder/websocket"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"fourkind-server/internal/fourkind"
)

var (
	ErrInvalidRequest = errors.New("INVALID_REQUEST: Malformed request")
	errInternal       = ErrorMessage{Code: "INTERNAL_ERROR", Message: "Internal server error"}
)

// errorStatus maps known errors to HTTP status codes. Pass rejections not
// listed here are a 400. Anything else, including corrupt stored state and
// deal failures, is a 500.
var errorStatus = []struct {
	err    error
	status int
}{
	{ErrConflict, http.StatusConflict},
	{ErrRoomNotFound, http.StatusNotFound},
	{ErrRoomFull, http.StatusForbidden},
	{ErrNotHost, http.StatusForbidden},
	{ErrNotInRoom, http.StatusForbidden},
	{fourkind.ErrNotAPlayer, http.StatusForbidden},
	{ErrGameAlreadyStarted, http.StatusBadRequest},
	{ErrInvalidRoomCode, http.StatusBadRequest},
	{ErrInvalidVisibility, http.StatusBadRequest},
	{ErrUsernameInvalid, http.StatusBadRequest},
	{ErrInvalidRequest, http.StatusBadRequest},
	{ErrTokenInvalid, http.StatusUnauthorized},
	{ErrRateLimited, http.StatusTooManyRequests},
}

// errorResponse returns the status and body for err. The body carries the
// sentinel's "CODE: message" text split in two.
func errorResponse(err error) (int, ErrorMessage) {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			return e.status, sentinelMessage(e.err)
		}
	}
	if rule := fourkind.RuleViolation(err); rule != nil {
		return http.StatusBadRequest, sentinelMessage(rule)
	}
	return http.StatusInternalServerError, errInternal
}

func sentinelMessage(err error) ErrorMessage {
	code, message, _ := strings.Cut(err.Error(), ": ")
	return ErrorMessage{Code: code, Message: message}
}

func (s *Server) RegisterRoutes() http.Handler {
	gin.SetMode(ginMode(s.cfg.Env))

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(s.log))
	r.Use(cors.New(corsConfig(s.cfg.AllowedOrigins)))

	r.GET("/health", s.healthHandler)
	r.POST("/session", s.createSessionHandler)
	r.GET("/rooms", s.listRoomsHandler)
	r.GET("/rooms/:code/ws", s.websocketHandler)
	r.GET("/players/:id/rooms", s.playerRoomsHandler)
	r.GET("/players/:id/stats", s.playerStatsHandler)
	r.GET("/leaderboard", s.leaderboardHandler)

	auth := r.Group("/", AuthRequired(s.sessions))
	auth.GET("/rooms/:code", s.getRoomHandler)

	limited := auth.Group("/", RateLimit(s.limiter))
	limited.POST("/rooms", s.createRoomHandler)
	limited.POST("/rooms/:code/join", s.joinRoomHandler)
	limited.POST("/rooms/:code/leave", s.leaveRoomHandler)
	limited.POST("/rooms/:code/bots", s.addBotsHandler)
	limited.POST("/rooms/:code/pass", s.passCardHandler)

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Accept", "Authorization", "Content-Type"},
		ExposeHeaders: []string{"Content-Length"},
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

func ginMode(env string) string {
	switch env {
	case "production":
		return gin.ReleaseMode
	case "test":
		return gin.TestMode
	}
	return gin.DebugMode
}

func (s *Server) healthHandler(c *gin.Context) {
	ctx := c.Request.Context()
	store := s.store.Health(ctx)
	notifier := s.notifier.Health(ctx)

	status := http.StatusOK
	if store["status"] != "up" || notifier["status"] != "up" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"store": store, "notifier": notifier, "connections": s.hub.ConnectionCount()})
}

func (s *Server) createSessionHandler(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, fmt.Errorf("%w: %v", ErrInvalidRequest, err))
		return
	}

	token, player, err := s.sessions.Issue(req.Name, req.AvatarURL)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, CreateSessionResponse{Token: token, Player: player})
}

func (s *Server) listRoomsHandler(c *gin.Context) {
	rooms, err := s.games.ListPublicRooms(c.Request.Context(), queryInt(c, "limit"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewRoomSummaries(rooms))
}

func (s *Server) createRoomHandler(c *gin.Context) {
	player, _ := playerFrom(c)

	var req CreateRoomRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			s.respondError(c, fmt.Errorf("%w: %v", ErrInvalidRequest, err))
			return
		}
	}
	visibility, err := ParseVisibility(req.Visibility)
	if err != nil {
		s.respondError(c, err)
		return
	}

	room, err := s.games.CreateGame(c.Request.Context(), player, visibility)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, NewRoomState(room, player.ID))
}

func (s *Server) getRoomHandler(c *gin.Context) {
	player, _ := playerFrom(c)

	state, err := s.games.GetState(c.Request.Context(), c.Param("code"), player.ID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (s *Server) joinRoomHandler(c *gin.Context) {
	player, _ := playerFrom(c)

	room, err := s.games.JoinGame(c.Request.Context(), c.Param("code"), player)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewRoomState(room, player.ID))
}

func (s *Server) leaveRoomHandler(c *gin.Context) {
	player, _ := playerFrom(c)

	room, err := s.games.LeaveGame(c.Request.Context(), c.Param("code"), player.ID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewRoomState(room, player.ID))
}

func (s *Server) addBotsHandler(c *gin.Context) {
	player, _ := playerFrom(c)

	room, err := s.games.AddBots(c.Request.Context(), c.Param("code"), player.ID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewRoomState(room, player.ID))
}

func (s *Server) passCardHandler(c *gin.Context) {
	player, _ := playerFrom(c)

	var req PassCardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		if errors.Is(err, fourkind.ErrInvalidCard) {
			s.respondError(c, err)
			return
		}
		s.respondError(c, fmt.Errorf("%w: %v", ErrInvalidRequest, err))
		return
	}

	card, err := req.card()
	if err != nil {
		s.respondError(c, err)
		return
	}

	room, err := s.games.PassCard(c.Request.Context(), c.Param("code"), player.ID, card, req.Version)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewRoomState(room, player.ID))
}

func (s *Server) playerRoomsHandler(c *gin.Context) {
	rooms, err := s.games.RoomsByPlayer(c.Request.Context(), c.Param("id"), queryInt(c, "limit"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewRoomSummaries(rooms))
}

func (s *Server) playerStatsHandler(c *gin.Context) {
	stats, err := s.games.PlayerStats(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) leaderboardHandler(c *gin.Context) {
	entries, err := s.games.Leaderboard(c.Request.Context(), queryInt(c, "limit"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

// websocketHandler authenticates with the token query parameter since
// browsers cannot set headers on websocket upgrades.
func (s *Server) websocketHandler(c *gin.Context) {
	player, err := s.sessions.Parse(c.Query("token"))
	if err != nil {
		s.respondError(c, err)
		return
	}

	room, err := s.games.ResumeGame(c.Request.Context(), c.Param("code"))
	if err != nil {
		s.respondError(c, err)
		return
	}

	socket, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		OriginPatterns: s.cfg.AllowedOrigins,
	})
	if err != nil {
		s.log.WithError(err).Warn("Failed to open websocket")
		return
	}
	defer socket.Close(websocket.StatusGoingAway, "Server closing")

	s.hub.Serve(c.Request.Context(), socket, room, player)
}

func (s *Server) respondError(c *gin.Context, err error) {
	status, body := errorResponse(err)
	entry := s.log.WithError(err).WithField("path", c.FullPath())
	switch {
	case status == http.StatusInternalServerError:
		entry.Error("Request failed")
	case fourkind.RuleViolation(err) != nil:
		entry.WithField("code", body.Code).Debug("Pass rejected")
	}
	c.JSON(status, body)
}

func queryInt(c *gin.Context, key string) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return 0
	}
	return n
}
