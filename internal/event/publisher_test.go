package event_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AdeepaK2/gear-up-be-sub000/internal/event"
	"github.com/AdeepaK2/gear-up-be-sub000/internal/testutil"
)

type stubDispatcher struct {
	submitted []event.NotificationEvent
	err       error
}

func (d *stubDispatcher) Submit(ev event.NotificationEvent) error {
	d.submitted = append(d.submitted, ev)
	return d.err
}

func TestPublishSetsKindPerHelper(t *testing.T) {
	d := &stubDispatcher{}
	p := event.NewPublisher(d, testutil.Logger(t))

	p.PublishAppointmentNotification("u1", "Reminder", "3pm")
	p.PublishProjectNotification("u1", "Update", "approved")
	p.PublishTaskNotification("u1", "New Task", "assigned")
	p.PublishSystemNotification("u1", "Maintenance", "tonight")
	p.PublishCustomNotification("u1", "Other", "body", "INVOICE_DUE")

	require.Len(t, d.submitted, 5)
	kinds := make([]event.Kind, 0, len(d.submitted))
	for _, ev := range d.submitted {
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []event.Kind{
		event.KindAppointment,
		event.KindProjectUpdate,
		event.KindTaskAssigned,
		event.KindSystem,
		event.Kind("INVOICE_DUE"),
	}, kinds)
}

func TestPublishDropsEmptyRecipient(t *testing.T) {
	d := &stubDispatcher{}
	p := event.NewPublisher(d, testutil.Logger(t))

	p.PublishSystemNotification("", "Maintenance", "tonight")

	assert.Empty(t, d.submitted)
}

func TestPublishSwallowsDispatcherRejection(t *testing.T) {
	d := &stubDispatcher{err: errors.New("queue full")}
	p := event.NewPublisher(d, testutil.Logger(t))

	// Must not panic or propagate; the producer is fire-and-forget.
	p.PublishTaskNotification("u1", "New Task", "assigned")

	assert.Len(t, d.submitted, 1)
}
