package catalog

import (
	"net/http"
	"strconv"

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

// RegisterRoutes mounts public browsing and admin management. optionalAuthn
// resolves a principal when a token is present so staff see inactive tests.
func (h *Handler) RegisterRoutes(api *echo.Group, authn, optionalAuthn echo.MiddlewareFunc) {
	g := api.Group("/lab-tests")
	g.GET("", h.List, optionalAuthn)
	g.GET("/categories", h.Categories)
	g.GET("/:id", h.Get, optionalAuthn)

	admin := g.Group("", authn, auth.RequireRole(auth.RoleAdmin))
	admin.POST("", h.Create)
	admin.PUT("/:id", h.Update)
	admin.DELETE("/:id", h.Delete)
}

func isStaff(c echo.Context) bool {
	switch auth.RoleFromContext(c.Request().Context()) {
	case auth.RoleAdmin, auth.RoleLabTechnician:
		return true
	}
	return false
}

func (h *Handler) Create(c echo.Context) error {
	var t LabTest
	if err := c.Bind(&t); err != nil {
		return httperr.Validation("invalid request body")
	}
	t.IsActive = true
	if err := h.svc.Create(c.Request().Context(), &t); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, t)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperr.Validation("invalid lab test id")
	}
	t, err := h.svc.Get(c.Request().Context(), id, isStaff(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := ListFilter{Category: c.QueryParam("category")}

	if raw := c.QueryParam("active"); raw != "" && isStaff(c) {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			return httperr.Validation("invalid active filter")
		}
		f.Active = &active
	} else if !isStaff(c) {
		// The public catalog only lists active tests.
		active := true
		f.Active = &active
	}

	items, total, err := h.svc.List(c.Request().Context(), f, pg.Limit(), pg.Offset())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) Categories(c echo.Context) error {
	categories, err := h.svc.Categories(c.Request().Context())
	if err != nil {
		return err
	}
	if categories == nil {
		categories = []string{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"categories": categories})
}

func (h *Handler) Update(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperr.Validation("invalid lab test id")
	}
	var t LabTest
	if err := c.Bind(&t); err != nil {
		return httperr.Validation("invalid request body")
	}
	updated, err := h.svc.Update(c.Request().Context(), id, &t)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, updated)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperr.Validation("invalid lab test id")
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
