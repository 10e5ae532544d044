package email

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRendererReminderOverdue(t *testing.T) {
	r := NewRenderer("Community Center")
	msg, err := r.Reminder("member@example.com", ReminderData{
		MemberName:   "Aisha <Admin>",
		TotalDue:     "$150.00",
		InvoiceCount: 2,
		Overdue:      true,
		Invoices: []InvoiceLine{
			{Period: "Nov 2024 Lifetime Membership", Amount: "$100.00", Status: "Overdue", Due: "November 1, 2025"},
			{Period: "Nov 2025 Lifetime Membership", Amount: "$50.00", Status: "Unpaid", Due: "November 1, 2026"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "member@example.com", msg.To)
	assert.Equal(t, "Overdue membership dues: $150.00", msg.Subject)
	assert.Contains(t, msg.HTML, "Aisha &lt;Admin&gt;")
	assert.Contains(t, msg.HTML, "2 invoices")
	assert.Contains(t, msg.Text, "Your membership dues are OVERDUE.")
	assert.Contains(t, msg.Text, "- Nov 2025 Lifetime Membership: $50.00 (Unpaid, due November 1, 2026)")
	assert.Contains(t, msg.Text, "Community Center")
}

func TestRendererPaymentRejected(t *testing.T) {
	r := NewRenderer("Community Center")
	msg, err := r.PaymentRejected("member@example.com", PaymentData{
		MemberName: "Omar",
		Amount:     "$500.00",
		Period:     "Nov 2025 Yearly Subscription + Janaza Fund",
		Reason:     "blurry screenshot",
		Balance:    "$500.00 Outstanding",
	})
	require.NoError(t, err)
	assert.Contains(t, msg.Text, "Reason: blurry screenshot")
	assert.Contains(t, msg.HTML, "$500.00 Outstanding")
}

func TestSMTPBuildMessageIsMultipart(t *testing.T) {
	p := NewSMTP(Config{Host: "smtp.example.com", Port: 587, From: "dues@example.com", FromName: "Dues Office"})
	p.now = func() time.Time { return time.Date(2025, 11, 1, 9, 0, 0, 0, time.UTC) }

	raw := string(p.buildMessage(Message{To: "member@example.com", Subject: "Hello", HTML: "<p>hi</p>", Text: "hi"}))

	assert.Contains(t, raw, "From: Dues Office <dues@example.com>\r\n")
	assert.Contains(t, raw, "To: member@example.com\r\n")
	assert.Contains(t, raw, "Content-Type: multipart/alternative;")
	assert.Contains(t, raw, "Content-Type: text/plain; charset=UTF-8")
	assert.Contains(t, raw, "<p>hi</p>")
	assert.Less(t, strings.Index(raw, "text/plain"), strings.Index(raw, "text/html"))
}

func TestSMTPSendValidates(t *testing.T) {
	p := NewSMTP(Config{Host: "smtp.example.com", Port: 587})
	err := p.Send(context.Background(), Message{To: "member@example.com"})
	assert.ErrorIs(t, err, ErrNoSender)

	p = NewSMTP(Config{Host: "smtp.example.com", Port: 587, From: "dues@example.com"})
	err = p.Send(context.Background(), Message{})
	assert.ErrorIs(t, err, ErrNoRecipient)
}

func TestNoOpProvider(t *testing.T) {
	assert.NoError(t, NoOpProvider{}.Send(context.Background(), Message{}))
}
