package events

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"equipment-scheduler/internal/domain"
	"equipment-scheduler/internal/logger"
)

// MailSender is satisfied by *sendgrid.Client.
type MailSender interface {
	Send(email *mail.SGMailV3) (*rest.Response, error)
}

// MailPublisher emails staff about the events they must act on. Other event
// types are ignored.
type MailPublisher struct {
	client     MailSender
	fromEmail  string
	fromName   string
	recipients []string
	types      map[domain.EventType]bool
}

// DefaultMailedEvents are the events staff are emailed about when no list is
// configured.
var DefaultMailedEvents = []domain.EventType{
	domain.EventLoanDueSoon,
	domain.EventLoanOverdue,
	domain.EventMaintenanceAlertDue,
}

// NewMailPublisher mails recipients about the given event types, or
// DefaultMailedEvents when types is empty.
func NewMailPublisher(client MailSender, fromEmail, fromName string, recipients []string, types []domain.EventType) *MailPublisher {
	if len(types) == 0 {
		types = DefaultMailedEvents
	}
	set := make(map[domain.EventType]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	return &MailPublisher{
		client:     client,
		fromEmail:  fromEmail,
		fromName:   fromName,
		recipients: recipients,
		types:      set,
	}
}

func (p *MailPublisher) Publish(ctx context.Context, event domain.Event) error {
	if !p.types[event.Type] || len(p.recipients) == 0 {
		return nil
	}

	subject := mailSubject(event)
	message := mail.NewV3Mail()
	message.SetFrom(mail.NewEmail(p.fromName, p.fromEmail))
	message.Subject = subject

	personalization := mail.NewPersonalization()
	for _, r := range p.recipients {
		personalization.AddTos(mail.NewEmail("", r))
	}
	message.AddPersonalizations(personalization)
	message.AddContent(mail.NewContent("text/plain", mailBody(event)))

	logger.ExternalServiceCall("sendgrid", "Send", "event_id", event.ID, "type", event.Type, "recipients", len(p.recipients))
	response, err := p.client.Send(message)
	if err == nil && response != nil && response.StatusCode >= 400 {
		err = fmt.Errorf("sendgrid error: status %d, body: %s", response.StatusCode, response.Body)
	}
	logger.ExternalServiceResult("sendgrid", "Send", err, "event_id", event.ID)
	if err != nil {
		return fmt.Errorf("failed to email event %s: %w", event.ID, err)
	}
	return nil
}

func mailSubject(event domain.Event) string {
	switch event.Type {
	case domain.EventLoanDueSoon:
		return fmt.Sprintf("Return due soon: reservation %d on equipment %d", event.ReservationID, event.EquipmentID)
	case domain.EventLoanOverdue:
		return fmt.Sprintf("Overdue loan: reservation %d on equipment %d", event.ReservationID, event.EquipmentID)
	case domain.EventMaintenanceAlertDue:
		return fmt.Sprintf("Maintenance due: equipment %d", event.EquipmentID)
	default:
		return fmt.Sprintf("%s: equipment %d", event.Type, event.EquipmentID)
	}
}

func mailBody(event domain.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Event: %s\n", event.Type)
	fmt.Fprintf(&b, "Occurred at: %s\n", event.OccurredAt.Format(domain.DateTimeLayout))
	fmt.Fprintf(&b, "Equipment: %d\n", event.EquipmentID)
	if event.ReservationID != 0 {
		fmt.Fprintf(&b, "Reservation: %d\n", event.ReservationID)
	}
	if event.RequesterID != 0 {
		fmt.Fprintf(&b, "Requester: %d\n", event.RequesterID)
	}

	keys := make([]string, 0, len(event.Attributes))
	for k := range event.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\n", k, event.Attributes[k])
	}
	return b.String()
}
