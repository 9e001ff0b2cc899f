package echoapi

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	// actorHeader carries the id of the LMS user acting through the trusted front end.
	actorHeader     = "X-Actor-ID"
	contextActorKey = "actor"
	contextObjKey   = "object"
)

func actorMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		if v := ctx.Request().Header.Get(actorHeader); v != "" {
			id, err := strconv.ParseInt(v, 10, 64)
			if err != nil || id <= 0 {
				return errHttpBadRequest
			}
			ctx.Set(contextActorKey, id)
		}
		return next(ctx)
	}
}

// actorID returns the acting LMS user, 0 when unknown.
func actorID(ctx echo.Context) int64 {
	id, _ := ctx.Get(contextActorKey).(int64)
	return id
}

// pathID parses the :name path param.
func pathID(ctx echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(ctx.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errHttpNotFound
	}
	return id, nil
}

// objectMiddleware loads the object identified by the :id path param into the context.
func objectMiddleware(load func(ctx echo.Context, id int64) (interface{}, error)) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			id, err := pathID(ctx, "id")
			if err != nil {
				return err
			}
			obj, err := load(ctx, id)
			if err != nil {
				return err
			}
			ctx.Set(contextObjKey, obj)
			return next(ctx)
		}
	}
}
