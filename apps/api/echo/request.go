package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/educonnect/backend/core/request"
	"github.com/educonnect/backend/core/user"
)

type requestApi struct {
	svc    request.Service
	usrSvc user.Service
}

func registerRequestAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc request.Service, usrSvc user.Service) {
	api := requestApi{svc: svc, usrSvc: usrSvc}

	rg := g.Group("/requests", jwt)
	rg.POST("", api.create, studentMiddleware())
	rg.GET("", api.query)
	rg.GET("/:id", api.retrieve)
	rg.POST("/:id/start", api.start, donorMiddleware())
	rg.POST("/:id/fulfill", api.fulfill, donorMiddleware())
	rg.POST("/:id/cancel", api.cancel)
}

func (api *requestApi) create(ctx echo.Context) error {
	var data request.NewRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewRequest")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	req, err := api.svc.Create(ctx.Request().Context(), ctxUsr.ID, data)
	if err != nil {
		return errors.Wrap(err, "creating request")
	}
	return ctx.JSON(http.StatusCreated, req)
}

func (api *requestApi) query(ctx echo.Context) error {
	filter := new(request.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []request.Request{})
	}
	filter.Clean()

	requests, err := api.svc.Query(ctx.Request().Context(), *filter, bindSortKey(ctx))
	if err != nil {
		return errors.Wrap(err, "querying requests")
	}
	if requests == nil {
		requests = []request.Request{}
	}
	return ctx.JSON(http.StatusOK, requests)
}

func (api *requestApi) retrieve(ctx echo.Context) error {
	req, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, req)
}

func (api *requestApi) start(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	req, err := api.svc.Start(ctx.Request().Context(), ctx.Param("id"), ctxUsr.ID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, req)
}

func (api *requestApi) fulfill(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	req, err := api.svc.Fulfill(ctx.Request().Context(), ctx.Param("id"), ctxUsr.ID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, req)
}

func (api *requestApi) cancel(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	req, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	// only the requesting student (or an admin) may withdraw it
	if req.OwnerID != ctxUsr.ID && !ctxUsr.IsAdmin() {
		return errHttpForbidden
	}

	req, err = api.svc.Cancel(ctx.Request().Context(), req.ID, ctxUsr.ID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, req)
}
