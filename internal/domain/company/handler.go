package company

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/vitalab/vitalab/internal/platform/auth"
	"github.com/vitalab/vitalab/internal/platform/httperr"
	"github.com/vitalab/vitalab/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the public company surface and admin message
// management. optionalAuthn attaches a user id to inquiries from logged-in
// senders.
func (h *Handler) RegisterRoutes(api *echo.Group, authn, optionalAuthn echo.MiddlewareFunc) {
	g := api.Group("/company")
	g.GET("/info", h.Info)
	g.GET("/services", h.Services)
	g.GET("/contact", h.Contact)
	g.POST("/contact", h.SubmitContact, optionalAuthn)

	admin := g.Group("", authn, auth.RequireRole(auth.RoleAdmin))
	admin.PUT("/info", h.UpdateInfo)
	admin.GET("/messages", h.ListMessages)
	admin.GET("/messages/:id", h.GetMessage)
	admin.PUT("/messages/:id/status", h.UpdateMessageStatus)
	admin.POST("/messages/:id/respond", h.Respond)
}

func (h *Handler) Info(c echo.Context) error {
	info, err := h.svc.Info(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, info)
}

func (h *Handler) UpdateInfo(c echo.Context) error {
	var info Company
	if err := c.Bind(&info); err != nil {
		return httperr.Validation("invalid request body")
	}
	if err := h.svc.UpdateInfo(c.Request().Context(), &info); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, info)
}

func (h *Handler) Services(c echo.Context) error {
	services, err := h.svc.Services(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"services": services})
}

func (h *Handler) Contact(c echo.Context) error {
	details, err := h.svc.Contact(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, details)
}

func (h *Handler) SubmitContact(c echo.Context) error {
	var req ContactRequest
	if err := c.Bind(&req); err != nil {
		return httperr.Validation("invalid request body")
	}
	var userID *uuid.UUID
	if raw := auth.UserIDFromContext(c.Request().Context()); raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			userID = &id
		}
	}
	m, err := h.svc.SubmitContact(c.Request().Context(), req, userID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, m)
}

func (h *Handler) ListMessages(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListMessages(c.Request().Context(), c.QueryParam("status"), pg.Limit(), pg.Offset())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) GetMessage(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperr.Validation("invalid message id")
	}
	m, err := h.svc.GetMessage(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) UpdateMessageStatus(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperr.Validation("invalid message id")
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&req); err != nil {
		return httperr.Validation("invalid request body")
	}
	m, err := h.svc.UpdateMessageStatus(c.Request().Context(), id, req.Status)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) Respond(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperr.Validation("invalid message id")
	}
	var req struct {
		Response string `json:"response"`
	}
	if err := c.Bind(&req); err != nil {
		return httperr.Validation("invalid request body")
	}
	m, err := h.svc.Respond(c.Request().Context(), id, req.Response)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, m)
}
