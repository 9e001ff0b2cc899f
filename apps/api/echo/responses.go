package echoapi

import (
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/danileyton/epicereport-sub000/core/delivery"
	"github.com/danileyton/epicereport-sub000/core/followup"
	"github.com/danileyton/epicereport-sub000/core/recurrence"
	"github.com/danileyton/epicereport-sub000/core/schedule"
)

type (
	// RecurrenceResponse is the scheduling part of schedules and followups, with
	// the status derived at request time.
	RecurrenceResponse struct {
		Enabled   bool              `json:"enabled"`
		Days      []string          `json:"days"`
		SendTime  string            `json:"send_time"`
		StartDate time.Time         `json:"start_date"`
		EndDate   null.Time         `json:"end_date"`
		LastRun   null.Time         `json:"last_run"`
		NextRun   null.Time         `json:"next_run"`
		Status    recurrence.Status `json:"status"`
		Warning   string            `json:"warning,omitempty"`
	}

	ScheduleResponse struct {
		ID         int64                `json:"id"`
		Name       string               `json:"name"`
		CourseID   int64                `json:"course_id"`
		Subject    string               `json:"subject"`
		Message    string               `json:"message"`
		Recipients []schedule.Recipient `json:"recipients"`
		CreatedBy  int64                `json:"created_by"`
		CreatedAt  time.Time            `json:"created_at"`
		UpdatedAt  time.Time            `json:"updated_at"`
		RecurrenceResponse
	}

	FollowupResponse struct {
		ID         int64      `json:"id"`
		Name       string     `json:"name"`
		CourseID   int64      `json:"course_id"`
		FeedbackID null.Int64 `json:"feedback_id"`
		Subject    string     `json:"subject"`
		Message    string     `json:"message"`
		SendLimit  string     `json:"send_limit"`
		CreatedBy  int64      `json:"created_by"`
		CreatedAt  time.Time  `json:"created_at"`
		UpdatedAt  time.Time  `json:"updated_at"`
		RecurrenceResponse
	}

	DeliveryResponse struct {
		ID           int64           `json:"id"`
		FiringID     string          `json:"firing_id"`
		Kind         delivery.Kind   `json:"kind"`
		SpecID       int64           `json:"spec_id"`
		TargetID     int64           `json:"target_id"`
		Recipient    string          `json:"recipient"`
		Status       delivery.Status `json:"status"`
		ErrorCode    string          `json:"error_code,omitempty"`
		ErrorMessage string          `json:"error_message,omitempty"`
		Attempts     int             `json:"attempts"`
		Retryable    bool            `json:"retryable"`
		SentAt       null.Time       `json:"sent_at"`
		CreatedAt    time.Time       `json:"created_at"`
		UpdatedAt    time.Time       `json:"updated_at"`
	}
)

func newRecurrenceResponse(spec recurrence.Spec, now time.Time) RecurrenceResponse {
	status := recurrence.StatusOf(spec, now)
	days := spec.Days.Names()
	if days == nil {
		days = []string{}
	}
	return RecurrenceResponse{
		Enabled:   spec.Enabled,
		Days:      days,
		SendTime:  spec.Time.String(),
		StartDate: spec.StartDate,
		EndDate:   spec.EndDate,
		LastRun:   spec.LastRun,
		NextRun:   spec.NextRun,
		Status:    status,
		Warning:   status.Warning(),
	}
}

func newScheduleResponse(sch schedule.Schedule, now time.Time) ScheduleResponse {
	rcpts := sch.Recipients
	if rcpts == nil {
		rcpts = []schedule.Recipient{}
	}
	return ScheduleResponse{
		ID:                 sch.ID,
		Name:               sch.Name,
		CourseID:           sch.CourseID,
		Subject:            sch.Subject,
		Message:            sch.Message,
		Recipients:         rcpts,
		CreatedBy:          sch.CreatedBy,
		CreatedAt:          sch.CreatedAt,
		UpdatedAt:          sch.UpdatedAt,
		RecurrenceResponse: newRecurrenceResponse(sch.Recurrence, now),
	}
}

func newFollowupResponse(fu followup.Followup, now time.Time) FollowupResponse {
	return FollowupResponse{
		ID:                 fu.ID,
		Name:               fu.Name,
		CourseID:           fu.CourseID,
		FeedbackID:         fu.FeedbackID,
		Subject:            fu.Subject,
		Message:            fu.Message,
		SendLimit:          string(fu.SendLimit),
		CreatedBy:          fu.CreatedBy,
		CreatedAt:          fu.CreatedAt,
		UpdatedAt:          fu.UpdatedAt,
		RecurrenceResponse: newRecurrenceResponse(fu.Recurrence, now),
	}
}

func newDeliveryResponse(l delivery.Log, maxRetries int) DeliveryResponse {
	return DeliveryResponse{
		ID:           l.ID,
		FiringID:     l.FiringID,
		Kind:         l.Kind,
		SpecID:       l.SpecID,
		TargetID:     l.TargetID,
		Recipient:    l.Recipient,
		Status:       l.Status,
		ErrorCode:    l.ErrorCode,
		ErrorMessage: l.ErrorMessage,
		Attempts:     l.Attempts,
		Retryable:    l.Retryable(maxRetries),
		SentAt:       l.SentAt,
		CreatedAt:    l.CreatedAt,
		UpdatedAt:    l.UpdatedAt,
	}
}
