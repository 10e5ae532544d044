package email

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"
)

// ReminderData fills the dues reminder email.
type ReminderData struct {
	OrgName      string
	MemberName   string
	TotalDue     string
	InvoiceCount int
	Overdue      bool
	Invoices     []InvoiceLine
}

type InvoiceLine struct {
	Period string
	Amount string
	Status string
	Due    string
}

// PaymentData fills payment approval and rejection emails.
type PaymentData struct {
	OrgName    string
	MemberName string
	Amount     string
	Period     string
	Reason     string
	Balance    string
}

const layoutHTML = `{{define "layout"}}<!doctype html>
<html>
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width,initial-scale=1">
  <title>{{template "title" .}}</title>
  <style>
    body { margin: 0; padding: 0; background: #f4f5f7; font-family: -apple-system, "Segoe UI", Roboto, Helvetica, Arial, sans-serif; color: #1f2937; }
    .container { max-width: 600px; margin: 32px auto; background: #ffffff; border-radius: 8px; padding: 32px; }
    h1 { font-size: 22px; margin: 0 0 16px; }
    p { line-height: 1.6; margin: 0 0 16px; }
    table { width: 100%; border-collapse: collapse; margin: 16px 0; }
    th, td { text-align: left; padding: 8px; border-bottom: 1px solid #e5e7eb; font-size: 14px; }
    .total { font-weight: 700; }
    .overdue { color: #b91c1c; }
    .muted { color: #6b7280; font-size: 12px; }
  </style>
</head>
<body>
  <div class="container">
    {{template "body" .}}
    <p class="muted">{{.OrgName}}</p>
  </div>
</body>
</html>{{end}}`

const reminderHTML = `{{define "title"}}Membership dues reminder{{end}}
{{define "body"}}
<h1>Dear {{.MemberName}},</h1>
{{if .Overdue}}
<p class="overdue">Your membership dues are <strong>overdue</strong>.</p>
{{else}}
<p>This is a friendly reminder that your membership dues are outstanding.</p>
{{end}}
<table>
  <tr><th>Period</th><th>Amount</th><th>Status</th><th>Due</th></tr>
  {{range .Invoices}}<tr><td>{{.Period}}</td><td>{{.Amount}}</td><td>{{.Status}}</td><td>{{.Due}}</td></tr>
  {{end}}
</table>
<p class="total">Total due: {{.TotalDue}} ({{.InvoiceCount}} invoice{{if ne .InvoiceCount 1}}s{{end}})</p>
<p>If you have already paid, please submit your payment proof so we can verify it.</p>
{{end}}`

const reminderText = `Dear {{.MemberName}},

{{if .Overdue}}Your membership dues are OVERDUE.{{else}}This is a friendly reminder that your membership dues are outstanding.{{end}}
{{range .Invoices}}
- {{.Period}}: {{.Amount}} ({{.Status}}, due {{.Due}}){{end}}

Total due: {{.TotalDue}}

If you have already paid, please submit your payment proof so we can verify it.

{{.OrgName}}
`

const approvedHTML = `{{define "title"}}Payment approved{{end}}
{{define "body"}}
<h1>Thank you {{.MemberName}}</h1>
<p>Your payment of <strong>{{.Amount}}</strong> for {{.Period}} has been verified.</p>
<p>Current balance: {{.Balance}}</p>
{{end}}`

const approvedText = `Thank you {{.MemberName}},

Your payment of {{.Amount}} for {{.Period}} has been verified.
Current balance: {{.Balance}}

{{.OrgName}}
`

const rejectedHTML = `{{define "title"}}Payment could not be verified{{end}}
{{define "body"}}
<h1>Hello {{.MemberName}},</h1>
<p>We could not verify your payment of <strong>{{.Amount}}</strong> for {{.Period}}.</p>
{{if .Reason}}<p>Reason: {{.Reason}}</p>{{end}}
<p>Please submit the payment again. Current balance: {{.Balance}}</p>
{{end}}`

const rejectedText = `Hello {{.MemberName}},

We could not verify your payment of {{.Amount}} for {{.Period}}.
{{if .Reason}}Reason: {{.Reason}}
{{end}}
Please submit the payment again. Current balance: {{.Balance}}

{{.OrgName}}
`

// Renderer turns template data into Messages.
type Renderer struct {
	orgName string

	reminderHTML *htmltemplate.Template
	reminderText *texttemplate.Template
	approvedHTML *htmltemplate.Template
	approvedText *texttemplate.Template
	rejectedHTML *htmltemplate.Template
	rejectedText *texttemplate.Template
}

func NewRenderer(orgName string) *Renderer {
	return &Renderer{
		orgName:      orgName,
		reminderHTML: mustLayout("reminder", reminderHTML),
		reminderText: texttemplate.Must(texttemplate.New("reminder").Parse(reminderText)),
		approvedHTML: mustLayout("approved", approvedHTML),
		approvedText: texttemplate.Must(texttemplate.New("approved").Parse(approvedText)),
		rejectedHTML: mustLayout("rejected", rejectedHTML),
		rejectedText: texttemplate.Must(texttemplate.New("rejected").Parse(rejectedText)),
	}
}

func mustLayout(name, body string) *htmltemplate.Template {
	t := htmltemplate.Must(htmltemplate.New(name).Parse(layoutHTML))
	return htmltemplate.Must(t.Parse(body))
}

func (r *Renderer) Reminder(to string, data ReminderData) (Message, error) {
	data.OrgName = r.orgName
	subject := "Membership dues reminder"
	if data.Overdue {
		subject = "Overdue membership dues: " + data.TotalDue
	}
	return r.render(to, subject, r.reminderHTML, r.reminderText, data)
}

func (r *Renderer) PaymentApproved(to string, data PaymentData) (Message, error) {
	data.OrgName = r.orgName
	return r.render(to, "Payment approved", r.approvedHTML, r.approvedText, data)
}

func (r *Renderer) PaymentRejected(to string, data PaymentData) (Message, error) {
	data.OrgName = r.orgName
	return r.render(to, "Payment could not be verified", r.rejectedHTML, r.rejectedText, data)
}

func (r *Renderer) render(to, subject string, html *htmltemplate.Template, text *texttemplate.Template, data any) (Message, error) {
	var htmlBody, textBody bytes.Buffer
	if err := html.ExecuteTemplate(&htmlBody, "layout", data); err != nil {
		return Message{}, fmt.Errorf("render %s html: %w", html.Name(), err)
	}
	if err := text.Execute(&textBody, data); err != nil {
		return Message{}, fmt.Errorf("render %s text: %w", text.Name(), err)
	}
	return Message{To: to, Subject: subject, HTML: htmlBody.String(), Text: textBody.String()}, nil
}
