// Package adminapi exposes the Challenge Manager's synchronous query
// surface (check_target, active_pocs) over HTTP, using echo the same way
// the teacher's own HTTP surface is built.
package adminapi

import (
	"encoding/hex"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"poc-challenge-manager/logging"
	"poc-challenge-manager/manager"
	"poc-challenge-manager/pockeys"
)

// Server wraps an echo instance bound to the Manager.
type Server struct {
	echo *echo.Echo
	mgr  *manager.Manager
}

// New builds the admin HTTP surface.
func New(mgr *manager.Manager) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	s := &Server{echo: e, mgr: mgr}
	e.GET("/healthz", s.handleHealthz)
	e.GET("/check_target", s.handleCheckTarget)
	e.GET("/active_pocs", s.handleActivePoCs)
	return s
}

// Start serves on addr; blocks until the server stops or errors.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

func (s *Server) handleHealthz(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

type checkTargetResponse struct {
	IsTarget bool   `json:"is_target"`
	Onion    string `json:"onion,omitempty"`
}

func (s *Server) handleCheckTarget(c echo.Context) error {
	challengeeHex := c.QueryParam("challengee")
	blockHashHex := c.QueryParam("block_hash")
	onionKeyHashHex := c.QueryParam("onion_key_hash")

	challengee, err := hex.DecodeString(challengeeHex)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid challengee hex")
	}
	blockHash, err := hex.DecodeString(blockHashHex)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid block_hash hex")
	}
	onionKeyHashBytes, err := hex.DecodeString(onionKeyHashHex)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid onion_key_hash hex")
	}
	onionKeyHash, err := pockeys.HashFromBytes(onionKeyHashBytes)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	result, err := s.mgr.CheckTarget(c.Request().Context(), pockeys.GatewayPubKey(challengee), blockHash, onionKeyHash)
	if err != nil {
		logging.Warn("check_target failed", logging.ModulePoC, "err", err)
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}

	resp := checkTargetResponse{IsTarget: result.IsTarget}
	if result.IsTarget {
		resp.Onion = hex.EncodeToString(result.Onion)
	}
	return c.JSON(http.StatusOK, resp)
}

type activePoCEntry struct {
	OnionKeyHash string `json:"onion_key_hash"`
	StartHeight  int64  `json:"start_height"`
	Target       string `json:"target"`
}

func (s *Server) handleActivePoCs(c echo.Context) error {
	pocs, err := s.mgr.ActivePoCs(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	out := make([]activePoCEntry, len(pocs))
	for i, p := range pocs {
		out[i] = activePoCEntry{
			OnionKeyHash: p.OnionKeyHash.String(),
			StartHeight:  p.StartHeight,
			Target:       p.Target.String(),
		}
	}
	return c.JSON(http.StatusOK, out)
}
