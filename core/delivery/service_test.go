package delivery_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/danileyton/epicereport-sub000/core"
	"github.com/danileyton/epicereport-sub000/core/delivery"
	"github.com/danileyton/epicereport-sub000/core/recurrence"
	inmemdb "github.com/danileyton/epicereport-sub000/storage/database/inmem"
)

func newService() *delivery.Service {
	return delivery.NewService(inmemdb.NewDeliveryRepository(inmemdb.Open()), &core.Config{})
}

func envelope(targetID int64, email string) delivery.Envelope {
	return delivery.Envelope{
		Kind:      delivery.KindFollowup,
		SpecID:    2,
		TargetID:  targetID,
		Recipient: email,
	}
}

func TestService_HasReachedLimit(t *testing.T) {
	ctx := context.Background()
	today := time.Date(2024, 1, 10, 0, 1, 0, 0, time.UTC)
	yesterday := time.Date(2024, 1, 9, 23, 59, 0, 0, time.UTC)
	sixDaysAgo := today.Add(-6 * 24 * time.Hour)

	tests := []struct {
		name   string
		sentAt time.Time
		window recurrence.Window
		want   bool
	}{
		{name: "D: daily, yesterday 23:59", sentAt: yesterday, window: recurrence.WindowDaily, want: false},
		{name: "daily, same day", sentAt: today.Add(-30 * time.Second), window: recurrence.WindowDaily, want: true},
		{name: "weekly, yesterday", sentAt: yesterday, window: recurrence.WindowWeekly, want: true},
		{name: "weekly, six days ago", sentAt: sixDaysAgo, window: recurrence.WindowWeekly, want: true},
		{name: "weekly, eight days ago", sentAt: today.Add(-8 * 24 * time.Hour), window: recurrence.WindowWeekly, want: false},
		{name: "none", sentAt: today, window: recurrence.WindowNone, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newService()
			if _, err := svc.Record(ctx, "f1", envelope(40, "u@example.com"), delivery.Sent(), tt.sentAt); err != nil {
				t.Fatal(err)
			}
			got, err := svc.HasReachedLimit(ctx, delivery.KindFollowup, 2, 40, tt.window, today)
			if err != nil {
				t.Fatalf("HasReachedLimit() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("HasReachedLimit() = %v; want %v", got, tt.want)
			}
		})
	}
}

func TestService_HasReachedLimit_IgnoresFailuresAndOthers(t *testing.T) {
	ctx := context.Background()
	svc := newService()
	now := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

	_, _ = svc.Record(ctx, "f1", envelope(40, "u@example.com"), delivery.Failed(delivery.CodeSendFailed, errors.New("boom")), now)
	_, _ = svc.Record(ctx, "f1", envelope(41, "v@example.com"), delivery.Sent(), now)

	got, err := svc.HasReachedLimit(ctx, delivery.KindFollowup, 2, 40, recurrence.WindowDaily, now)
	if err != nil {
		t.Fatal(err)
	}
	if got {
		t.Errorf("HasReachedLimit() = true; failed deliveries and other targets must not count")
	}
}

func TestService_RecordAndRetry(t *testing.T) {
	ctx := context.Background()
	svc := newService()
	now := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

	l, err := svc.Record(ctx, "f1", envelope(40, "u@example.com"), delivery.Failed(delivery.CodeSendFailed, errors.New("boom")), now)
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if l.Status != delivery.StatusFailed || l.Attempts != 1 || l.ErrorMessage != "boom" {
		t.Errorf("Record() = %+v", l)
	}
	if _, err = svc.Record(ctx, "f1", envelope(40, "u@example.com"), delivery.Sent(), now); err == nil {
		t.Errorf("Record(same firing and target) error = nil; want one log per target and firing")
	}

	retryable, _ := svc.Retryable(ctx)
	if len(retryable) != 1 {
		t.Fatalf("Retryable() = %d logs; want 1", len(retryable))
	}

	l, err = svc.RecordRetry(ctx, l, delivery.Sent(), now.Add(time.Hour))
	if err != nil {
		t.Fatalf("RecordRetry() error = %v", err)
	}
	if l.Status != delivery.StatusSent || l.Attempts != 2 || l.ErrorCode != "" || !l.SentAt.Valid {
		t.Errorf("RecordRetry() = %+v", l)
	}
	if retryable, _ = svc.Retryable(ctx); len(retryable) != 0 {
		t.Errorf("Retryable() = %d logs; want 0", len(retryable))
	}
}

func TestService_Record_SharedEmail(t *testing.T) {
	ctx := context.Background()
	svc := newService()
	now := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

	// two participants registered with the same address
	for _, target := range []int64{40, 41} {
		if _, err := svc.Record(ctx, "f1", envelope(target, "family@example.com"), delivery.Sent(), now); err != nil {
			t.Fatalf("Record(target %d) error = %v", target, err)
		}
	}
	logs, err := svc.Query(ctx, &delivery.QueryFilter{FiringID: "f1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 2 {
		t.Errorf("Query() = %d logs; want one per target", len(logs))
	}
}

func TestService_RetryBudget(t *testing.T) {
	ctx := context.Background()
	svc := newService()
	now := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)
	fail := delivery.Failed(delivery.CodeSendFailed, errors.New("boom"))

	l, _ := svc.Record(ctx, "f1", envelope(40, "u@example.com"), fail, now)
	for i := 1; i < svc.MaxRetries(); i++ {
		l, _ = svc.RecordRetry(ctx, l, fail, now)
	}
	if l.Attempts != delivery.MaxRetries {
		t.Errorf("Attempts = %d; want %d", l.Attempts, delivery.MaxRetries)
	}
	if retryable, _ := svc.Retryable(ctx); len(retryable) != 0 {
		t.Errorf("Retryable() = %d logs; the budget is spent", len(retryable))
	}

	other, _ := svc.Record(ctx, "f2", envelope(41, "v@example.com"), fail, now)
	abandoned, err := svc.Abandon(ctx, other, delivery.CodeObsolete, "gone", now)
	if err != nil {
		t.Fatalf("Abandon() error = %v", err)
	}
	if abandoned.Retryable(svc.MaxRetries()) || abandoned.ErrorCode != delivery.CodeObsolete {
		t.Errorf("Abandon() = %+v", abandoned)
	}
}

func TestService_Query(t *testing.T) {
	ctx := context.Background()
	svc := newService()
	now := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

	_, _ = svc.Record(ctx, "f1", envelope(40, "a@example.com"), delivery.Sent(), now)
	_, _ = svc.Record(ctx, "f1", envelope(41, "b@example.com"), delivery.Failed(delivery.CodeSendFailed, nil), now)
	_, _ = svc.Record(ctx, "f2", envelope(40, "a@example.com"), delivery.Sent(), now)

	tests := []struct {
		name   string
		filter *delivery.QueryFilter
		want   int
	}{
		{name: "all", want: 3},
		{name: "by firing", filter: &delivery.QueryFilter{FiringID: "f1"}, want: 2},
		{name: "by status", filter: &delivery.QueryFilter{Status: delivery.StatusFailed}, want: 1},
		{name: "by kind", filter: &delivery.QueryFilter{Kind: delivery.KindSchedule}, want: 0},
		{name: "limit", filter: &delivery.QueryFilter{Limit: 1}, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logs, err := svc.Query(ctx, tt.filter)
			if err != nil {
				t.Fatalf("Query() error = %v", err)
			}
			if len(logs) != tt.want {
				t.Errorf("Query() = %d logs; want %d", len(logs), tt.want)
			}
		})
	}
}
