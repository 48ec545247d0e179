package echoapi

import (
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/educonnect/backend/core"
	"github.com/educonnect/backend/core/donation"
	"github.com/educonnect/backend/core/user"
)

const maxImageSize = 5 << 20 // 5 MiB

var (
	errImageTooLarge = "image may not exceed 5 MB"
	errNotAnImage    = "file must be an image"
)

type donationApi struct {
	svc    donation.Service
	usrSvc user.Service
}

func registerDonationAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc donation.Service, usrSvc user.Service) {
	api := donationApi{svc: svc, usrSvc: usrSvc}

	dg := g.Group("/donations", jwt)
	dg.POST("", api.create, donorMiddleware())
	dg.GET("", api.query)
	dg.GET("/:id", api.retrieve)
	dg.POST("/:id/claim", api.claim, studentMiddleware())
	dg.POST("/:id/finalize", api.finalize, donorMiddleware())
}

func (api *donationApi) create(ctx echo.Context) error {
	var data donation.NewDonation
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewDonation")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	image, err := api.saveImage(ctx)
	if err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	don, err := api.svc.Create(ctx.Request().Context(), ctxUsr.ID, data, image)
	if err != nil {
		return errors.Wrap(err, "creating donation")
	}
	return ctx.JSON(http.StatusCreated, don)
}

// saveImage stores an optional uploaded image under MediaRoot and returns its
// generated filename; an absent file is not an error.
func (api *donationApi) saveImage(ctx echo.Context) (string, error) {
	fh, err := ctx.FormFile("image")
	if err != nil {
		return "", nil // no file attached
	}
	if fh.Size > maxImageSize {
		return "", core.NewValidationError(nil, core.FieldError{Field: "image", Error: errImageTooLarge})
	}
	if !strings.HasPrefix(fh.Header.Get("Content-Type"), "image/") {
		return "", core.NewValidationError(nil, core.FieldError{Field: "image", Error: errNotAnImage})
	}

	src, err := fh.Open()
	if err != nil {
		return "", errors.Wrap(err, "opening uploaded image")
	}
	defer func(src multipart.File) { _ = src.Close() }(src)

	if err = os.MkdirAll(core.Conf.MediaRoot, 0o755); err != nil {
		return "", errors.Wrap(err, "creating media root")
	}
	name := uuid.New().String() + filepath.Ext(fh.Filename)
	dst, err := os.Create(filepath.Join(core.Conf.MediaRoot, name))
	if err != nil {
		return "", errors.Wrap(err, "creating image file")
	}
	defer func(dst *os.File) { _ = dst.Close() }(dst)

	if _, err = io.Copy(dst, src); err != nil {
		return "", errors.Wrap(err, "saving image file")
	}
	return name, nil
}

func (api *donationApi) query(ctx echo.Context) error {
	filter := new(donation.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []donation.Donation{})
	}
	filter.Clean()

	donations, err := api.svc.Filter(ctx.Request().Context(), *filter)
	if err != nil {
		return errors.Wrap(err, "querying donations")
	}
	if donations == nil {
		donations = []donation.Donation{}
	}
	return ctx.JSON(http.StatusOK, donations)
}

func (api *donationApi) retrieve(ctx echo.Context) error {
	don, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, don)
}

func (api *donationApi) claim(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	don, err := api.svc.Claim(ctx.Request().Context(), ctx.Param("id"), ctxUsr.ID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, don)
}

func (api *donationApi) finalize(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	don, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	// only the donor who posted it (or an admin) may hand it over
	if don.OwnerID != ctxUsr.ID && !ctxUsr.IsAdmin() {
		return errHttpForbidden
	}

	don, err = api.svc.Finalize(ctx.Request().Context(), don.ID, ctxUsr.ID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, don)
}
