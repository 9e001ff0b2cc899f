package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/danileyton/epicereport-sub000/core/schedule"
)

var errSchNotFoundInCtx = errors.New("schedule object not found in echo.Context")

type scheduleApi struct {
	svc *schedule.Service
}

func registerScheduleAPI(g *echo.Group, svc *schedule.Service) {
	api := scheduleApi{svc: svc}

	sg := g.Group("/schedules")
	sg.GET("", api.query)
	sg.POST("", api.create)

	// detail endpoints
	dg := sg.Group("/:id", objectMiddleware(func(ctx echo.Context, id int64) (interface{}, error) {
		return api.svc.Get(ctx.Request().Context(), id)
	}))
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
	dg.DELETE("", api.destroy)
	dg.POST("/enable", api.enable)
	dg.POST("/disable", api.disable)
	dg.POST("/recipients", api.addRecipient)
	dg.DELETE("/recipients/:rid", api.removeRecipient)
}

func ctxSchedule(ctx echo.Context) (schedule.Schedule, error) {
	sch, ok := ctx.Get(contextObjKey).(schedule.Schedule)
	if !ok {
		return sch, errors.Wrap(errSchNotFoundInCtx, "retrieving object from context")
	}
	return sch, nil
}

// Handlers

func (api *scheduleApi) query(ctx echo.Context) error {
	var f specFilter
	if err := f.Bind(ctx); err != nil {
		return err
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	schs, err := api.svc.Query(ctx.Request().Context(), &schedule.QueryFilter{
		Search:   f.Search,
		CourseID: f.CourseID,
		Enabled:  f.Enabled,
	}, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying schedules")
	}

	now := api.svc.Now()
	res := make([]ScheduleResponse, 0, len(schs))
	for _, sch := range schs {
		res = append(res, newScheduleResponse(sch, now))
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *scheduleApi) create(ctx echo.Context) error {
	var data schedule.NewSchedule
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSchedule")
	}
	data.CreatedBy = actorID(ctx)

	sch, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating schedule")
	}
	return ctx.JSON(http.StatusCreated, newScheduleResponse(sch, api.svc.Now()))
}

func (api *scheduleApi) retrieve(ctx echo.Context) error {
	sch, err := ctxSchedule(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, newScheduleResponse(sch, api.svc.Now()))
}

func (api *scheduleApi) update(ctx echo.Context) error {
	sch, err := ctxSchedule(ctx)
	if err != nil {
		return err
	}

	var data schedule.UpdateSchedule
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateSchedule")
	}

	sch, err = api.svc.Update(ctx.Request().Context(), sch.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating schedule")
	}
	return ctx.JSON(http.StatusOK, newScheduleResponse(sch, api.svc.Now()))
}

func (api *scheduleApi) destroy(ctx echo.Context) error {
	sch, err := ctxSchedule(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.Delete(ctx.Request().Context(), sch.ID); err != nil {
		return errors.Wrap(err, "deleting schedule")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *scheduleApi) enable(ctx echo.Context) error  { return api.setEnabled(ctx, true) }
func (api *scheduleApi) disable(ctx echo.Context) error { return api.setEnabled(ctx, false) }

func (api *scheduleApi) setEnabled(ctx echo.Context, enabled bool) error {
	sch, err := ctxSchedule(ctx)
	if err != nil {
		return err
	}
	sch, err = api.svc.SetEnabled(ctx.Request().Context(), sch.ID, enabled)
	if err != nil {
		return errors.Wrap(err, "toggling schedule")
	}
	return ctx.JSON(http.StatusOK, newScheduleResponse(sch, api.svc.Now()))
}

func (api *scheduleApi) addRecipient(ctx echo.Context) error {
	sch, err := ctxSchedule(ctx)
	if err != nil {
		return err
	}

	var data schedule.NewRecipient
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewRecipient")
	}
	rcpt, err := api.svc.AddRecipient(ctx.Request().Context(), sch.ID, data)
	if err != nil {
		return errors.Wrap(err, "adding recipient")
	}
	return ctx.JSON(http.StatusCreated, rcpt)
}

func (api *scheduleApi) removeRecipient(ctx echo.Context) error {
	sch, err := ctxSchedule(ctx)
	if err != nil {
		return err
	}
	rid, err := pathID(ctx, "rid")
	if err != nil {
		return err
	}
	if err := api.svc.RemoveRecipient(ctx.Request().Context(), sch.ID, rid); err != nil {
		return errors.Wrap(err, "removing recipient")
	}
	return ctx.NoContent(http.StatusNoContent)
}
