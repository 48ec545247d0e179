package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/educonnect/backend/core/payment"
	"github.com/educonnect/backend/core/user"
)

type paymentApi struct {
	svc    payment.Service
	usrSvc user.Service
}

func registerPaymentAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc payment.Service, usrSvc user.Service) {
	api := paymentApi{svc: svc, usrSvc: usrSvc}

	pg := g.Group("/payments", jwt)
	pg.POST("", api.create, donorMiddleware())
	pg.GET("", api.query)
	pg.GET("/:id", api.retrieve)
	pg.POST("/:id/process", api.process, adminMiddleware())
}

func (api *paymentApi) create(ctx echo.Context) error {
	var data payment.NewPayment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewPayment")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	pmt, err := api.svc.Create(ctx.Request().Context(), ctxUsr.ID, data)
	if err != nil {
		return errors.Wrap(err, "creating payment")
	}
	return ctx.JSON(http.StatusCreated, pmt)
}

func (api *paymentApi) query(ctx echo.Context) error {
	filter := new(payment.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []payment.Payment{})
	}
	filter.Clean()

	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	// non-admins only see payments they take part in
	if !ctxUsr.IsAdmin() {
		if ctxUsr.IsDonor() {
			filter.DonorID = ctxUsr.ID
		} else {
			filter.RecipientID = ctxUsr.ID
		}
	}

	payments, err := api.svc.Filter(ctx.Request().Context(), *filter)
	if err != nil {
		return errors.Wrap(err, "querying payments")
	}
	if payments == nil {
		payments = []payment.Payment{}
	}
	return ctx.JSON(http.StatusOK, payments)
}

func (api *paymentApi) retrieve(ctx echo.Context) error {
	pmt, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, pmt)
}

func (api *paymentApi) process(ctx echo.Context) error {
	var data payment.ProcessPayment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ProcessPayment")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	pmt, err := api.svc.Process(ctx.Request().Context(), ctx.Param("id"), ctxUsr.ID, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, pmt)
}
