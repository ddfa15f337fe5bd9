package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	ethchecksum "github.com/ethchecksum/ethchecksum"
	"github.com/ethchecksum/ethchecksum/checksum"
	"github.com/ethchecksum/ethchecksum/profile"
	"github.com/ethchecksum/ethchecksum/settings"
)

// InvalidAddressMessage is shown for input that is not an address
const InvalidAddressMessage = "Invalid Ethereum address"

// ============================================================================
// Checksum
// ============================================================================

type checksumResponse struct {
	Input    string `json:"input"`
	Checksum string `json:"checksum"`
	// Matches is true when the input already carried a correct checksum or
	// no checksum at all (single-case input)
	Matches bool `json:"matches"`
}

func (s *Server) handleChecksum(c *gin.Context) {
	input := strings.TrimSpace(c.Query("address"))
	if input == "" {
		c.JSON(http.StatusOK, checksumResponse{})
		return
	}

	normalized, err := checksum.Normalize(input)
	if err != nil {
		errorJSON(c, http.StatusUnprocessableEntity, InvalidAddressMessage)
		return
	}

	c.JSON(http.StatusOK, checksumResponse{
		Input:    input,
		Checksum: normalized,
		Matches:  checksum.Verify(input) == nil,
	})
}

// ============================================================================
// Settings and Theme
// ============================================================================

type settingsResponse struct {
	Version  int               `json:"version"`
	Settings settings.Settings `json:"settings"`
	IsDark   bool              `json:"isDark"`
}

func (s *Server) settingsJSON(c *gin.Context) {
	current, isDark := s.cfg.State.Snapshot()
	c.JSON(http.StatusOK, settingsResponse{
		Version:  settings.CurrentVersion,
		Settings: current,
		IsDark:   isDark,
	})
}

func (s *Server) handleGetSettings(c *gin.Context) {
	s.settingsJSON(c)
}

func (s *Server) handlePatchSettings(c *gin.Context) {
	var changes map[string]json.RawMessage
	if err := c.ShouldBindJSON(&changes); err != nil {
		errorJSON(c, http.StatusBadRequest, "request body must be a JSON object")
		return
	}

	if err := s.cfg.State.Update(changes); err != nil {
		if errors.Is(err, settings.ErrInvalidSettings) {
			errorJSON(c, http.StatusUnprocessableEntity, err.Error())
			return
		}
		s.logger.Error("failed to persist settings", "error", err)
		errorJSON(c, http.StatusInternalServerError, "failed to persist settings")
		return
	}
	s.settingsJSON(c)
}

func (s *Server) handleResetSettings(c *gin.Context) {
	if err := s.cfg.State.ResetToDefaults(); err != nil {
		s.logger.Error("failed to persist settings", "error", err)
		errorJSON(c, http.StatusInternalServerError, "failed to persist settings")
		return
	}
	s.settingsJSON(c)
}

func (s *Server) handleGetTheme(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"isDark": s.cfg.State.IsDark()})
}

func (s *Server) handlePutTheme(c *gin.Context) {
	var req struct {
		IsDark *bool `json:"isDark"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.IsDark == nil {
		errorJSON(c, http.StatusBadRequest, "isDark is required")
		return
	}

	if err := s.cfg.State.SetDark(*req.IsDark); err != nil {
		s.logger.Error("failed to persist theme", "error", err)
		errorJSON(c, http.StatusInternalServerError, "failed to persist theme")
		return
	}
	c.JSON(http.StatusOK, gin.H{"isDark": *req.IsDark})
}

func (s *Server) handleToggleTheme(c *gin.Context) {
	isDark, err := s.cfg.State.ToggleTheme()
	if err != nil {
		s.logger.Error("failed to persist theme", "error", err)
		errorJSON(c, http.StatusInternalServerError, "failed to persist theme")
		return
	}
	c.JSON(http.StatusOK, gin.H{"isDark": isDark})
}

// ============================================================================
// Wallet Session
// ============================================================================

type sessionResponse struct {
	Connected  bool   `json:"connected"`
	Account    string `json:"account,omitempty"`
	Login      string `json:"login"`
	Profile    string `json:"profile"`
	HasProfile bool   `json:"hasProfile"`
	IsLoading  bool   `json:"isLoading"`
	IsSaving   bool   `json:"isSaving"`
}

func (s *Server) handleSession(c *gin.Context) {
	resp := sessionResponse{
		Login:   ethchecksum.StateIdle.String(),
		Profile: ethchecksum.StateIdle.String(),
	}
	if s.cfg.Session != nil {
		account, _, connected := s.cfg.Session.Current()
		resp.Connected = connected
		resp.Account = account
	}
	if resp.Connected && s.cfg.Login != nil {
		resp.Login = s.cfg.Login.Status(resp.Account).String()
	}
	if p := s.cfg.Profile; p != nil {
		if resp.Connected {
			resp.Profile = p.Orchestrator().Status(resp.Account).String()
		}
		resp.HasProfile = p.HasProfile()
		resp.IsLoading = p.IsLoading()
		resp.IsSaving = p.IsSaving()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleConnect(c *gin.Context) {
	if s.cfg.Session == nil || s.cfg.Connector == nil {
		errorJSON(c, http.StatusNotImplemented, "no local wallet configured")
		return
	}
	s.cfg.Session.Connect(s.cfg.Account, s.cfg.Connector)
	s.handleSession(c)
}

func (s *Server) handleDisconnect(c *gin.Context) {
	if s.cfg.Session != nil {
		s.cfg.Session.Disconnect()
	}
	s.handleSession(c)
}

// ============================================================================
// Profile
// ============================================================================

func (s *Server) handleSaveProfile(c *gin.Context) {
	if s.cfg.Profile == nil {
		errorJSON(c, http.StatusNotImplemented, "cloud sync is disabled")
		return
	}

	ctx, cancel := s.actionContext()
	defer cancel()

	err := s.cfg.Profile.SaveToCloud(ctx)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"saved": true})
	case errors.Is(err, profile.ErrNotConnected):
		errorJSON(c, http.StatusConflict, err.Error())
	case errors.Is(err, profile.ErrSaveInProgress):
		errorJSON(c, http.StatusConflict, err.Error())
	default:
		code := ethchecksum.Classify(err)
		status := http.StatusBadGateway
		switch code {
		case ethchecksum.ErrCodeUserRejected:
			status = http.StatusForbidden
		case ethchecksum.ErrCodeWrongChain:
			status = http.StatusPreconditionFailed
		}
		c.AbortWithStatusJSON(status, gin.H{"error": err.Error(), "code": code})
	}
}

// ============================================================================
// Notifications
// ============================================================================

type actionView struct {
	Label string `json:"label"`
}

type toastView struct {
	ID         string      `json:"id"`
	Kind       string      `json:"kind"`
	Message    string      `json:"message"`
	DurationMs int64       `json:"durationMs,omitempty"`
	Link       string      `json:"link,omitempty"`
	Action     *actionView `json:"action,omitempty"`
}

func viewToast(t ethchecksum.Toast) toastView {
	v := toastView{
		ID:         t.ID,
		Kind:       kindName(t.Kind),
		Message:    t.Message,
		DurationMs: t.Duration.Milliseconds(),
		Link:       t.Link,
	}
	if t.Action != nil {
		v.Action = &actionView{Label: t.Action.Label}
	}
	return v
}

func kindName(kind ethchecksum.ToastKind) string {
	switch kind {
	case ethchecksum.ToastPrompt:
		return "prompt"
	case ethchecksum.ToastSuccess:
		return "success"
	case ethchecksum.ToastError:
		return "error"
	default:
		return "unknown"
	}
}

func (s *Server) toastsJSON(c *gin.Context) {
	views := []toastView{}
	if s.cfg.Toaster != nil {
		for _, t := range s.cfg.Toaster.Active() {
			views = append(views, viewToast(t))
		}
	}
	c.JSON(http.StatusOK, gin.H{"toasts": views})
}

func (s *Server) handleListToasts(c *gin.Context) {
	s.toastsJSON(c)
}

func (s *Server) handleClickToast(c *gin.Context) {
	if s.cfg.Toaster == nil {
		errorJSON(c, http.StatusNotFound, "toast not found")
		return
	}

	ctx, cancel := s.actionContext()
	defer cancel()

	if !s.cfg.Toaster.Click(ctx, c.Param("id")) {
		errorJSON(c, http.StatusNotFound, "toast not found")
		return
	}
	s.toastsJSON(c)
}

func (s *Server) handleCloseToast(c *gin.Context) {
	if s.cfg.Toaster == nil {
		errorJSON(c, http.StatusNotFound, "toast not found")
		return
	}

	ctx, cancel := s.actionContext()
	defer cancel()

	if !s.cfg.Toaster.Close(ctx, c.Param("id")) {
		errorJSON(c, http.StatusNotFound, "toast not found")
		return
	}
	s.toastsJSON(c)
}
