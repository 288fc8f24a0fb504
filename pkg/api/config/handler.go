package config

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"fund_extractor/pkg/core/agent"
)

type Response struct {
	ActiveProvider string   `json:"active_provider"`
	Available      []string `json:"available"`
}

type SwitchRequest struct {
	Provider string `json:"provider"`
}

// Handler holds dependencies for config endpoints
type Handler struct {
	AgentMgr *agent.Manager
	logger   *zap.Logger
}

// NewHandler creates a new config handler
func NewHandler(agentMgr *agent.Manager, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		AgentMgr: agentMgr,
		logger:   logger,
	}
}

// Register mounts the endpoints on g (normally /api/config).
func (h *Handler) Register(g *echo.Group) {
	g.GET("", h.HandleConfig)
	g.POST("/switch", h.HandleSwitch)
}

func (h *Handler) HandleConfig(c echo.Context) error {
	return c.JSON(http.StatusOK, Response{
		ActiveProvider: h.AgentMgr.GetActiveProvider(),
		Available:      h.AgentMgr.ProviderNames(),
	})
}

func (h *Handler) HandleSwitch(c echo.Context) error {
	var req SwitchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body").SetInternal(err)
	}
	if req.Provider == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "provider is required")
	}

	if err := h.AgentMgr.SetGlobalProvider(req.Provider); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	return c.String(http.StatusOK, fmt.Sprintf("Success: Switched to %s", req.Provider))
}
