package echoapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/danileyton/epicereport-sub000/core"
	"github.com/danileyton/epicereport-sub000/core/delivery"
)

const (
	defaultDeliveryLimit = 100
	maxDeliveryLimit     = 1000
)

type deliveryApi struct {
	svc *delivery.Service
}

func registerDeliveryAPI(g *echo.Group, svc *delivery.Service) {
	api := deliveryApi{svc: svc}

	dg := g.Group("/deliveries")
	dg.GET("", api.query)
	dg.GET("/:id", api.retrieve)
}

func bindDeliveryFilter(ctx echo.Context) (*delivery.QueryFilter, error) {
	f := &delivery.QueryFilter{
		Kind:     delivery.Kind(ctx.QueryParam("kind")),
		FiringID: ctx.QueryParam("firing_id"),
		Status:   delivery.Status(ctx.QueryParam("status")),
		Limit:    defaultDeliveryLimit,
	}
	switch f.Kind {
	case "", delivery.KindSchedule, delivery.KindFollowup:
	default:
		return nil, core.NewValidationError(nil, core.FieldError{Field: "kind", Error: "must be one of: schedule, followup"})
	}
	switch f.Status {
	case "", delivery.StatusPending, delivery.StatusSent, delivery.StatusFailed:
	default:
		return nil, core.NewValidationError(nil, core.FieldError{Field: "status", Error: "must be one of: pending, sent, failed"})
	}
	if v := ctx.QueryParam("spec_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, core.NewValidationError(nil, core.FieldError{Field: "spec_id", Error: "must be a number"})
		}
		f.SpecID = id
	}
	if v := ctx.QueryParam("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 || limit > maxDeliveryLimit {
			return nil, core.NewValidationError(nil, core.FieldError{Field: "limit", Error: "must be between 1 and 1000"})
		}
		f.Limit = limit
	}
	return f, nil
}

func (api *deliveryApi) query(ctx echo.Context) error {
	filter, err := bindDeliveryFilter(ctx)
	if err != nil {
		return err
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	logs, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying deliveries")
	}
	res := make([]DeliveryResponse, 0, len(logs))
	for _, l := range logs {
		res = append(res, newDeliveryResponse(l, api.svc.MaxRetries()))
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *deliveryApi) retrieve(ctx echo.Context) error {
	id, err := pathID(ctx, "id")
	if err != nil {
		return err
	}
	l, err := api.svc.Get(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "retrieving delivery")
	}
	return ctx.JSON(http.StatusOK, newDeliveryResponse(l, api.svc.MaxRetries()))
}
