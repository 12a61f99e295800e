package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"drive-agent-backend/config"
	"drive-agent-backend/service/scan"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	emailReminderMinutes = 1440
	popupReminderMinutes = 60
)

// GoogleProvider 在配置的Google日历上创建行动项事件
type GoogleProvider struct {
	svc        *calendar.Service
	calendarID string
	timeZone   string
}

func NewGoogleProvider(ctx context.Context) (*GoogleProvider, error) {
	svc, err := calendar.NewService(ctx,
		option.WithCredentialsFile(config.Cfg.Calendar.CredentialsFile),
		option.WithScopes(calendar.CalendarEventsScope),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %v", err)
	}

	return &GoogleProvider{
		svc:        svc,
		calendarID: config.Cfg.Calendar.CalendarID,
		timeZone:   config.Cfg.Calendar.TimeZone,
	}, nil
}

func (p *GoogleProvider) CreateEvent(ctx context.Context, spec scan.EventSpec) (string, error) {
	event := &calendar.Event{
		Summary:     spec.Title,
		Description: spec.Description,
		Start: &calendar.EventDateTime{
			DateTime: spec.Start.Format(time.RFC3339),
			TimeZone: p.timeZone,
		},
		End: &calendar.EventDateTime{
			DateTime: spec.End.Format(time.RFC3339),
			TimeZone: p.timeZone,
		},
		Reminders: &calendar.EventReminders{
			UseDefault: false,
			Overrides: []*calendar.EventReminder{
				{Method: "email", Minutes: emailReminderMinutes},
				{Method: "popup", Minutes: popupReminderMinutes},
			},
			ForceSendFields: []string{"UseDefault"},
		},
	}

	created, err := p.svc.Events.Insert(p.calendarID, event).Context(ctx).Do()
	if err != nil {
		return "", classifyCalendarError(fmt.Errorf("failed to insert event: %v", err), err)
	}

	return created.Id, nil
}

// classifyCalendarError 请求体非法重试无意义，限流与服务端错误可重试
func classifyCalendarError(wrapped, cause error) error {
	var apiErr *googleapi.Error
	if !errors.As(cause, &apiErr) {
		return scan.Transient(wrapped)
	}

	switch {
	case apiErr.Code == 403:
		for _, e := range apiErr.Errors {
			if e.Reason == "rateLimitExceeded" || e.Reason == "userRateLimitExceeded" {
				return scan.Transient(wrapped)
			}
		}
		return scan.Permanent(wrapped)
	case apiErr.Code == 429 || apiErr.Code >= 500:
		return scan.Transient(wrapped)
	default:
		return scan.Permanent(wrapped)
	}
}
