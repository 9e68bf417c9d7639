package booking

import (
	"net/http"
	"time"

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

func (h *Handler) RegisterRoutes(api *echo.Group, authn echo.MiddlewareFunc) {
	api.POST("/lab-tests/:id/book", h.Create, authn)

	g := api.Group("/bookings", authn)
	g.GET("", h.List)
	g.GET("/upcoming", h.Upcoming)
	g.GET("/stats", h.Stats, auth.RequireRole(auth.RoleAdmin))
	g.GET("/:id", h.Get)
	g.PUT("/:id", h.Update)
	g.PUT("/:id/cancel", h.Cancel)
	g.PUT("/:id/status", h.UpdateStatus, auth.RequireRole(auth.RoleAdmin))
}

func caller(c echo.Context) (uuid.UUID, string, error) {
	ctx := c.Request().Context()
	id, err := uuid.Parse(auth.UserIDFromContext(ctx))
	if err != nil {
		return uuid.Nil, "", httperr.Authentication()
	}
	return id, auth.RoleFromContext(ctx), nil
}

func (h *Handler) Create(c echo.Context) error {
	labTestID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperr.Validation("invalid lab test id")
	}
	callerID, _, err := caller(c)
	if err != nil {
		return err
	}
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return httperr.Validation("invalid request body")
	}
	b, err := h.svc.Create(c.Request().Context(), callerID, labTestID, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, b)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperr.Validation("invalid booking id")
	}
	callerID, role, err := caller(c)
	if err != nil {
		return err
	}
	b, err := h.svc.Get(c.Request().Context(), id, callerID, role)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, b)
}

func parseFilter(c echo.Context) (Filter, error) {
	var f Filter
	f.Status = c.QueryParam("status")
	if f.Status != "" && !ValidStatus(f.Status) {
		return f, httperr.Validation("unknown status: " + f.Status)
	}
	if raw := c.QueryParam("from"); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return f, httperr.Validation("from must be an RFC 3339 timestamp")
		}
		f.From = &from
	}
	if raw := c.QueryParam("to"); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return f, httperr.Validation("to must be an RFC 3339 timestamp")
		}
		f.To = &to
	}
	if raw := c.QueryParam("user_id"); raw != "" {
		uid, err := uuid.Parse(raw)
		if err != nil {
			return f, httperr.Validation("invalid user_id filter")
		}
		f.UserID = &uid
	}
	return f, nil
}

func (h *Handler) List(c echo.Context) error {
	callerID, role, err := caller(c)
	if err != nil {
		return err
	}
	f, err := parseFilter(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), callerID, role, f, pg.Limit(), pg.Offset())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) Upcoming(c echo.Context) error {
	callerID, role, err := caller(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.Upcoming(c.Request().Context(), callerID, role, pg.Limit(), pg.Offset())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) Update(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperr.Validation("invalid booking id")
	}
	callerID, role, err := caller(c)
	if err != nil {
		return err
	}
	var req UpdateRequest
	if err := c.Bind(&req); err != nil {
		return httperr.Validation("invalid request body")
	}
	b, err := h.svc.Update(c.Request().Context(), id, callerID, role, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) Cancel(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperr.Validation("invalid booking id")
	}
	callerID, role, err := caller(c)
	if err != nil {
		return err
	}
	var req struct {
		Reason *string `json:"reason"`
	}
	if err := c.Bind(&req); err != nil {
		return httperr.Validation("invalid request body")
	}
	b, err := h.svc.Cancel(c.Request().Context(), id, callerID, role, req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperr.Validation("invalid booking id")
	}
	var req struct {
		Status     string  `json:"status"`
		AdminNotes *string `json:"admin_notes"`
	}
	if err := c.Bind(&req); err != nil {
		return httperr.Validation("invalid request body")
	}
	b, err := h.svc.UpdateStatus(c.Request().Context(), id, req.Status, req.AdminNotes)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) Stats(c echo.Context) error {
	counts, err := h.svc.Stats(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"by_status": counts})
}
