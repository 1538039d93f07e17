package event

import "log/slog"

// Dispatcher accepts events for asynchronous handling. Submit must never
// block: implementations enqueue or reject.
type Dispatcher interface {
	Submit(ev NotificationEvent) error
}

// Publisher is the fire-and-forget entry point business modules use to emit
// notification events. A rejected submission is logged and dropped; the
// producer never blocks and never sees an error.
type Publisher struct {
	dispatcher Dispatcher
	logger     *slog.Logger
}

// NewPublisher creates a Publisher that hands events to the given dispatcher.
func NewPublisher(dispatcher Dispatcher, logger *slog.Logger) *Publisher {
	return &Publisher{dispatcher: dispatcher, logger: logger}
}

// PublishAppointmentNotification emits an APPOINTMENT event.
func (p *Publisher) PublishAppointmentNotification(recipientID, title, message string) {
	p.publish(NotificationEvent{RecipientID: recipientID, Title: title, Message: message, Kind: KindAppointment})
}

// PublishProjectNotification emits a PROJECT_UPDATE event.
func (p *Publisher) PublishProjectNotification(recipientID, title, message string) {
	p.publish(NotificationEvent{RecipientID: recipientID, Title: title, Message: message, Kind: KindProjectUpdate})
}

// PublishTaskNotification emits a TASK_ASSIGNED event.
func (p *Publisher) PublishTaskNotification(recipientID, title, message string) {
	p.publish(NotificationEvent{RecipientID: recipientID, Title: title, Message: message, Kind: KindTaskAssigned})
}

// PublishSystemNotification emits a SYSTEM event.
func (p *Publisher) PublishSystemNotification(recipientID, title, message string) {
	p.publish(NotificationEvent{RecipientID: recipientID, Title: title, Message: message, Kind: KindSystem})
}

// PublishCustomNotification emits an event with a caller-supplied kind.
func (p *Publisher) PublishCustomNotification(recipientID, title, message, kind string) {
	p.publish(NotificationEvent{RecipientID: recipientID, Title: title, Message: message, Kind: Kind(kind)})
}

func (p *Publisher) publish(ev NotificationEvent) {
	if ev.RecipientID == "" {
		p.logger.Warn("dropping notification event without recipient", "kind", string(ev.Kind))
		return
	}
	if err := p.dispatcher.Submit(ev); err != nil {
		p.logger.Warn("notification event rejected by dispatcher",
			"recipient_id", ev.RecipientID,
			"kind", string(ev.Kind),
			"error", err,
		)
	}
}
