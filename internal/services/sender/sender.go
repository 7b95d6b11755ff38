// Package sender превращает уведомления из очереди в письма и отправляет их.
package sender

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"

	"github.com/magabrotheeeer/finance-saas/internal/lib/sl"
	"github.com/magabrotheeeer/finance-saas/internal/metrics"
	"github.com/magabrotheeeer/finance-saas/internal/models"
)

var (
	ErrUnknownTemplate  = errors.New("unknown notification template")
	ErrMissingRecipient = errors.New("notification has no recipient email")
)

// Первый язык используется, если запрошенный не поддерживается.
var supported = []language.Tag{language.Portuguese, language.English}

var matcher = language.NewMatcher(supported)

var dateLayouts = map[language.Tag]string{
	language.Portuguese: "02/01/2006",
	language.English:    "Jan 2, 2006",
}

// Mailer доставляет готовое письмо. Реализуется smtp.Mailer, postmark.Client и LogMailer.
type Mailer interface {
	Send(ctx context.Context, email models.Email) error
}

type Service struct {
	mailer  Mailer
	lang    language.Tag
	catalog catalog.Catalog
	log     *slog.Logger
}

// New создаёт Service. Письма пишутся на ближайшем поддерживаемом к lang языке.
func New(mailer Mailer, lang language.Tag, log *slog.Logger) *Service {
	_, idx, _ := matcher.Match(lang)
	return &Service{
		mailer:  mailer,
		lang:    supported[idx],
		catalog: newCatalog(),
		log:     log,
	}
}

// Handle обрабатывает одно сообщение очереди уведомлений.
// Нечитаемые сообщения и неизвестные шаблоны подтверждаются и теряются:
// повторная доставка их не исправит. Ошибка почтового сервиса возвращает сообщение в очередь.
func (s *Service) Handle(ctx context.Context, body []byte) error {
	const op = "sender.Handle"

	var n models.Notification
	if err := json.Unmarshal(body, &n); err != nil {
		s.log.Error("dropping malformed notification", sl.Err(err))
		metrics.RecordEmail("unknown", "dropped")
		return nil
	}

	email, err := s.Render(n)
	if err != nil {
		label := n.TemplateID
		if errors.Is(err, ErrUnknownTemplate) {
			label = "unknown"
		}
		s.log.Error("dropping undeliverable notification",
			slog.String("template", n.TemplateID),
			sl.UserID(n.UserID),
			sl.Err(err),
		)
		metrics.RecordEmail(label, "dropped")
		return nil
	}

	if err := s.mailer.Send(ctx, email); err != nil {
		metrics.RecordEmail(n.TemplateID, "failed")
		return fmt.Errorf("%s: %w", op, err)
	}
	metrics.RecordEmail(n.TemplateID, "sent")
	s.log.Info("email sent", slog.String("template", n.TemplateID), sl.UserID(n.UserID))
	return nil
}

// Render собирает письмо по шаблону уведомления.
func (s *Service) Render(n models.Notification) (models.Email, error) {
	const op = "sender.Render"

	to := stringParam(n.Params, "email")
	if to == "" {
		return models.Email{}, fmt.Errorf("%s: %w", op, ErrMissingRecipient)
	}

	p := message.NewPrinter(s.lang, message.Catalog(s.catalog))
	l := letter{Greeting: p.Sprintf(msgGreetingPlain)}
	if name := stringParam(n.Params, "name"); name != "" {
		l.Greeting = p.Sprintf(msgGreeting, name)
	}
	plan := s.planTitle(stringParam(n.Params, "planType"))
	billingURL := stringParam(n.Params, "billingUrl")

	switch models.NotificationKind(n.TemplateID) {
	case models.NotifyTrial3Days, models.NotifyTrial1Day:
		days := intParam(n.Params, "daysLeft")
		if days <= 0 {
			days = 1
			if models.NotificationKind(n.TemplateID) == models.NotifyTrial3Days {
				days = 3
			}
		}
		l.Subject = p.Sprintf(msgTrialEndsIn, days)
		l.Paragraphs = []string{p.Sprintf(msgTrialEndsOn, plan, s.date(stringParam(n.Params, "trialEndsAt")))}
		l.ActionURL, l.ActionLabel = billingURL, p.Sprintf(msgChoosePlan)
	case models.NotifyTrialToday:
		l.Subject = p.Sprintf(msgTrialToday)
		l.Paragraphs = []string{p.Sprintf(msgTrialTodayBody, plan)}
		l.ActionURL, l.ActionLabel = billingURL, p.Sprintf(msgChoosePlan)
	case models.NotifyTrialExpire:
		l.Subject = p.Sprintf(msgTrialExpired)
		l.Paragraphs = []string{p.Sprintf(msgTrialLimited)}
		l.ActionURL, l.ActionLabel = billingURL, p.Sprintf(msgChoosePlan)
	case models.NotifyPaymentApproved:
		amount := s.money(p, stringParam(n.Params, "amount"), stringParam(n.Params, "currency"))
		l.Subject = p.Sprintf(msgPaymentOK)
		l.Paragraphs = []string{p.Sprintf(msgPaymentOKBody, amount, plan, s.date(stringParam(n.Params, "paidUntil")))}
	case models.NotifyPaymentRejected:
		amount := s.money(p, stringParam(n.Params, "amount"), stringParam(n.Params, "currency"))
		l.Subject = p.Sprintf(msgPaymentFail)
		l.Paragraphs = []string{p.Sprintf(msgPaymentFailBody, amount, plan)}
		if reason := stringParam(n.Params, "reason"); reason != "" {
			l.Paragraphs = append(l.Paragraphs, p.Sprintf(msgReason, reason))
		}
		l.ActionURL, l.ActionLabel = billingURL, p.Sprintf(msgGoToBilling)
	default:
		return models.Email{}, fmt.Errorf("%s: %q: %w", op, n.TemplateID, ErrUnknownTemplate)
	}

	html, text, err := l.render()
	if err != nil {
		return models.Email{}, fmt.Errorf("%s: %w", op, err)
	}
	return models.Email{
		To:       to,
		Subject:  l.Subject,
		HTMLBody: html,
		TextBody: text,
		Tag:      n.TemplateID,
	}, nil
}

func (s *Service) planTitle(plan string) string {
	if plan == "" {
		return ""
	}
	return cases.Title(s.lang).String(strings.ReplaceAll(plan, "_", " "))
}

// date печатает дату в часовом поясе, записанном в значении RFC3339.
func (s *Service) date(value string) string {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return value
	}
	return t.Format(dateLayouts[s.lang])
}

// money печатает сумму с символом валюты; для неизвестного кода выводится "сумма КОД".
func (s *Service) money(p *message.Printer, amount, code string) string {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return strings.TrimSpace(amount + " " + code)
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return strings.TrimSpace(d.StringFixed(2) + " " + code)
	}
	return p.Sprint(currency.Symbol(unit.Amount(d.InexactFloat64())))
}

func stringParam(params map[string]any, key string) string {
	v, _ := params[key].(string)
	return strings.TrimSpace(v)
}

// intParam читает число; после JSON оно приходит как float64.
func intParam(params map[string]any, key string) int {
	switch v := params[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case json.Number:
		i, _ := v.Int64()
		return int(i)
	default:
		return 0
	}
}
