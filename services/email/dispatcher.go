package emailsvc

import (
	"context"
	"net/mail"

	"github.com/pkg/errors"

	"github.com/danileyton/epicereport-sub000/core"
	"github.com/danileyton/epicereport-sub000/core/delivery"
	"github.com/danileyton/epicereport-sub000/core/report"
)

// templates by delivery kind
var templateNames = map[delivery.Kind]string{
	delivery.KindSchedule: "report",
	delivery.KindFollowup: "followup",
}

type templateData struct {
	RecipientName string
	ScheduleName  string
	CourseName    string
	Message       string
	Attachments   []string
}

// Dispatcher delivers envelopes as emails.
type Dispatcher struct {
	mailer core.EmailService
	conf   *core.Config
}

var _ delivery.Dispatcher = (*Dispatcher)(nil)

func NewDispatcher(mailer core.EmailService, conf *core.Config) *Dispatcher {
	return &Dispatcher{mailer: mailer, conf: conf}
}

func (d *Dispatcher) Send(ctx context.Context, env delivery.Envelope) delivery.Result {
	to, err := mail.ParseAddress(env.Recipient)
	if err != nil {
		return delivery.Failed(delivery.CodeInvalidRecipient, errors.Wrapf(err, "parsing %q", env.Recipient))
	}
	to.Name = env.RecipientName

	msg := &core.EmailMessage{
		To:           []mail.Address{*to},
		Subject:      env.Subject,
		TemplateName: templateNames[env.Kind],
		TemplateData: templateData{
			RecipientName: env.RecipientName,
			ScheduleName:  env.SpecName,
			CourseName:    env.CourseName,
			Message:       env.Message,
			Attachments:   report.Names(env.Artifacts),
		},
	}
	if msg.TemplateName == "" {
		msg.BodyStr = env.Message
	}
	for _, a := range env.Artifacts {
		msg.Attach(a.Content, a.Name, a.ContentType)
	}

	if err := msg.Render(d.conf); err != nil {
		return delivery.Failed(delivery.CodeRenderFailed, err)
	}
	if err := d.mailer.SendMessage(ctx, msg); err != nil {
		return delivery.Failed(delivery.CodeSendFailed, err)
	}
	return delivery.Sent()
}
