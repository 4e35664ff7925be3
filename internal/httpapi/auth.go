package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fleetward/fleetward/internal/middleware"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	UserID string `json:"userId"`
	Token  string `json:"token"`
	Expiry int64  `json:"expiry"`
}

// login authenticates an operator (§4.3 Login). In forward-auth mode the username is taken
// from the configured forward-auth header instead of the request body.
func (h *Handlers) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalid(c, "invalid login payload")
		return
	}

	forwardUsername := ""
	if h.Config.Auth.ForwardAuthEnabled {
		forwardUsername = c.GetHeader("X-Forwarded-User")
	}

	sess, err := h.Token.Login(c.Request.Context(), req.Username, req.Password, forwardUsername)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, loginResponse{
		UserID: sess.UserID,
		Token:  sess.ID,
		Expiry: sess.IssuedAt.Add(h.Config.Auth.SessionLifespan).Unix(),
	})
}

// logout deletes the caller's session row outright (the stricter open-question
// resolution recorded in SPEC_FULL.md §6).
func (h *Handlers) logout(c *gin.Context) {
	tok := extractBearerOrQuery(c)
	if tok != "" {
		_ = h.Store.DeleteSession(c.Request.Context(), tok)
	}
	c.Status(http.StatusNoContent)
}

// validateForMaster is the master's external-auth callback (§4.3 validateForMaster).
func (h *Handlers) validateForMaster(c *gin.Context) {
	username := c.PostForm("username")
	password := c.PostForm("password")

	perms, err := h.Token.ValidateForMaster(c.Request.Context(), username, password)
	if err != nil {
		fail(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", []byte(perms))
}

func extractBearerOrQuery(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		return trimBearer(header)
	}
	return c.Query("token")
}

func trimBearer(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):]
	}
	return header
}

func myUserID(c *gin.Context) string {
	return middleware.MustAuthStatus(c).UserID
}
