package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/danileyton/epicereport-sub000/core/followup"
)

var errFuNotFoundInCtx = errors.New("followup object not found in echo.Context")

type followupApi struct {
	svc *followup.Service
}

func registerFollowupAPI(g *echo.Group, svc *followup.Service) {
	api := followupApi{svc: svc}

	fg := g.Group("/followups")
	fg.GET("", api.query)
	fg.POST("", api.create)

	dg := fg.Group("/:id", objectMiddleware(func(ctx echo.Context, id int64) (interface{}, error) {
		return api.svc.Get(ctx.Request().Context(), id)
	}))
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
	dg.DELETE("", api.destroy)
	dg.POST("/enable", api.enable)
	dg.POST("/disable", api.disable)
}

func ctxFollowup(ctx echo.Context) (followup.Followup, error) {
	fu, ok := ctx.Get(contextObjKey).(followup.Followup)
	if !ok {
		return fu, errors.Wrap(errFuNotFoundInCtx, "retrieving object from context")
	}
	return fu, nil
}

func (api *followupApi) query(ctx echo.Context) error {
	var f specFilter
	if err := f.Bind(ctx); err != nil {
		return err
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	fus, err := api.svc.Query(ctx.Request().Context(), &followup.QueryFilter{
		Search:   f.Search,
		CourseID: f.CourseID,
		Enabled:  f.Enabled,
	}, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying followups")
	}

	now := api.svc.Now()
	res := make([]FollowupResponse, 0, len(fus))
	for _, fu := range fus {
		res = append(res, newFollowupResponse(fu, now))
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *followupApi) create(ctx echo.Context) error {
	var data followup.NewFollowup
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewFollowup")
	}
	data.CreatedBy = actorID(ctx)

	fu, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating followup")
	}
	return ctx.JSON(http.StatusCreated, newFollowupResponse(fu, api.svc.Now()))
}

func (api *followupApi) retrieve(ctx echo.Context) error {
	fu, err := ctxFollowup(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, newFollowupResponse(fu, api.svc.Now()))
}

func (api *followupApi) update(ctx echo.Context) error {
	fu, err := ctxFollowup(ctx)
	if err != nil {
		return err
	}

	var data followup.UpdateFollowup
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateFollowup")
	}

	fu, err = api.svc.Update(ctx.Request().Context(), fu.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating followup")
	}
	return ctx.JSON(http.StatusOK, newFollowupResponse(fu, api.svc.Now()))
}

func (api *followupApi) destroy(ctx echo.Context) error {
	fu, err := ctxFollowup(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.Delete(ctx.Request().Context(), fu.ID); err != nil {
		return errors.Wrap(err, "deleting followup")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *followupApi) enable(ctx echo.Context) error  { return api.setEnabled(ctx, true) }
func (api *followupApi) disable(ctx echo.Context) error { return api.setEnabled(ctx, false) }

func (api *followupApi) setEnabled(ctx echo.Context, enabled bool) error {
	fu, err := ctxFollowup(ctx)
	if err != nil {
		return err
	}
	fu, err = api.svc.SetEnabled(ctx.Request().Context(), fu.ID, enabled)
	if err != nil {
		return errors.Wrap(err, "toggling followup")
	}
	return ctx.JSON(http.StatusOK, newFollowupResponse(fu, api.svc.Now()))
}
