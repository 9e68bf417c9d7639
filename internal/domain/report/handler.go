package report

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

func (h *Handler) RegisterRoutes(api *echo.Group, authn echo.MiddlewareFunc) {
	g := api.Group("/reports", authn)
	staff := auth.RequireRole(auth.RoleLabTechnician)

	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.GET("/:id/download", h.Download)
	g.POST("/:id/share", h.Share)

	g.POST("", h.Create, staff)
	g.PUT("/:id", h.Update, staff)
	g.PUT("/:id/status", h.UpdateStatus, staff)
	g.POST("/:id/upload", h.Upload, staff)

	g.DELETE("/:id", h.Delete, auth.RequireRole(auth.RoleAdmin))
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
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return httperr.Validation("invalid request body")
	}
	rep, err := h.svc.Create(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, rep)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperr.Validation("invalid report id")
	}
	callerID, role, err := caller(c)
	if err != nil {
		return err
	}
	rep, err := h.svc.Get(c.Request().Context(), id, callerID, role)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rep)
}

func (h *Handler) List(c echo.Context) error {
	callerID, role, err := caller(c)
	if err != nil {
		return err
	}

	var f Filter
	if f.Status = c.QueryParam("status"); f.Status != "" && !ValidStatus(f.Status) {
		return httperr.Validation("unknown status: " + f.Status)
	}
	if f.PaymentStatus = c.QueryParam("payment_status"); f.PaymentStatus != "" && !ValidPaymentStatus(f.PaymentStatus) {
		return httperr.Validation("unknown payment status: " + f.PaymentStatus)
	}
	if raw := c.QueryParam("user_id"); raw != "" {
		uid, err := uuid.Parse(raw)
		if err != nil {
			return httperr.Validation("invalid user_id filter")
		}
		f.UserID = &uid
	}
	if raw := c.QueryParam("lab_test_id"); raw != "" {
		tid, err := uuid.Parse(raw)
		if err != nil {
			return httperr.Validation("invalid lab_test_id filter")
		}
		f.LabTestID = &tid
	}

	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), callerID, role, f, pg.Limit(), pg.Offset())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) Update(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperr.Validation("invalid report id")
	}
	var req UpdateRequest
	if err := c.Bind(&req); err != nil {
		return httperr.Validation("invalid request body")
	}
	rep, err := h.svc.Update(c.Request().Context(), id, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rep)
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperr.Validation("invalid report id")
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&req); err != nil {
		return httperr.Validation("invalid request body")
	}
	verifiedBy := auth.UsernameFromContext(c.Request().Context())
	rep, err := h.svc.UpdateStatus(c.Request().Context(), id, req.Status, verifiedBy)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rep)
}

func (h *Handler) Upload(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperr.Validation("invalid report id")
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return httperr.Validation("multipart field 'file' is required")
	}
	src, err := fh.Open()
	if err != nil {
		return httperr.Internal(err)
	}
	defer src.Close()

	rep, err := h.svc.Upload(c.Request().Context(), id, fh.Filename,
		fh.Header.Get(echo.HeaderContentType), fh.Size, src)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rep)
}

func (h *Handler) Download(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperr.Validation("invalid report id")
	}
	callerID, role, err := caller(c)
	if err != nil {
		return err
	}
	url, err := h.svc.Download(c.Request().Context(), id, callerID, role)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"download_url": url,
		"expires_in":   int(presignTTL.Seconds()),
	})
}

func (h *Handler) Share(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperr.Validation("invalid report id")
	}
	callerID, _, err := caller(c)
	if err != nil {
		return err
	}
	var req struct {
		SharedWith string `json:"shared_with"`
	}
	if err := c.Bind(&req); err != nil {
		return httperr.Validation("invalid request body")
	}
	rep, err := h.svc.Share(c.Request().Context(), id, callerID, req.SharedWith)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rep)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperr.Validation("invalid report id")
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
