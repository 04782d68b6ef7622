package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/refset/churn-decision-agent/internal/decision"
)

var errNoRecipient = errors.New("customer has no email address")

const emailHTML = `<html>
<body>
<h2>Hello {{.Greeting}},</h2>
<p>We've noticed some changes in your account activity that we'd like to discuss with you.</p>
<h3>Account Summary</h3>
<ul>
<li><strong>Customer ID:</strong> {{.CustomerID}}</li>
<li><strong>Monthly Value:</strong> {{.MonthlyValue}}</li>
<li><strong>Last Login:</strong> {{.LastLogin}} days ago</li>
</ul>
<h3>How We Can Help</h3>
<p>Our team is here to ensure you're getting the most value from our service. We'd love to:</p>
<ul>
<li>Review your current usage and identify optimization opportunities</li>
<li>Provide additional training or support if needed</li>
<li>Discuss any challenges you might be facing</li>
<li>Explore ways to enhance your experience</li>
</ul>
<h3>Next Steps</h3>
<p>Please reply to this email or contact our customer success team to schedule a brief call. We're committed to your success!</p>
<p>Best regards,<br>
{{.Signature}}</p>
<hr>
<p><small>This email was sent by our automated customer success system.</small></p>
</body>
</html>
`

const emailText = `Hello {{.Greeting}},

We've noticed some changes in your account activity that we'd like to discuss with you.

Account Summary:
- Customer ID: {{.CustomerID}}
- Monthly Value: {{.MonthlyValue}}
- Last Login: {{.LastLogin}} days ago

How We Can Help:
Our team is here to ensure you're getting the most value from our service. We'd love to:
- Review your current usage and identify optimization opportunities
- Provide additional training or support if needed
- Discuss any challenges you might be facing
- Explore ways to enhance your experience

Next Steps:
Please reply to this email or contact our customer success team to schedule a brief call. We're committed to your success!

Best regards,
{{.Signature}}

---
This email was sent by our automated customer success system.`

var (
	htmlBody = htmltemplate.Must(htmltemplate.New("html").Parse(emailHTML))
	textBody = texttemplate.Must(texttemplate.New("text").Parse(emailText))
)

type emailData struct {
	Greeting     string
	CustomerID   string
	MonthlyValue string
	LastLogin    string
	Signature    string
}

type email struct {
	to      string
	name    string
	subject string
	html    string
	text    string
}

// Mailer sends retention emails to customers through SendGrid.
type Mailer struct {
	client   *sendgrid.Client
	fromAddr string
	fromName string
}

func NewMailer(apiKey, fromAddr, fromName string) *Mailer {
	return &Mailer{
		client:   sendgrid.NewSendClient(apiKey),
		fromAddr: fromAddr,
		fromName: fromName,
	}
}

func (m *Mailer) Deliver(ctx context.Context, customer decision.Record, a decision.Analysis) (Receipt, error) {
	msg, err := m.compose(customer, a)
	if err != nil {
		return Receipt{}, err
	}

	// SendWithContext stores the body on the client, so each send gets a copy.
	client := *m.client
	resp, err := client.SendWithContext(ctx, mail.NewSingleEmail(
		mail.NewEmail(m.fromName, m.fromAddr),
		msg.subject,
		mail.NewEmail(msg.name, msg.to),
		msg.text,
		msg.html,
	))
	if err != nil {
		return Receipt{}, fmt.Errorf("SendGrid request: %w", err)
	}
	if resp.StatusCode >= 400 {
		return Receipt{}, fmt.Errorf("SendGrid API error %d: %s", resp.StatusCode, resp.Body)
	}

	var messageID string
	if ids := resp.Headers["X-Message-Id"]; len(ids) > 0 {
		messageID = ids[0]
	}
	return Receipt{Reference: messageID, Details: map[string]any{"to_email": msg.to}}, nil
}

func (m *Mailer) compose(customer decision.Record, a decision.Analysis) (email, error) {
	to := customer.String("email")
	if to == "" || to == decision.Unknown {
		return email{}, errNoRecipient
	}

	name := customer.String("company_name")
	greeting := name
	if greeting == "" || greeting == decision.Unknown {
		name, greeting = "", "Valued Customer"
	}
	signature := m.fromName
	if signature == "" {
		signature = "Your Customer Success Team"
	}

	data := emailData{
		Greeting:     greeting,
		CustomerID:   a.CustomerID,
		MonthlyValue: money(customer["monthly_revenue"]),
		LastLogin:    value(customer, "days_since_last_login"),
		Signature:    signature,
	}

	var html, text bytes.Buffer
	if err := htmlBody.Execute(&html, data); err != nil {
		return email{}, fmt.Errorf("render html body: %w", err)
	}
	if err := textBody.Execute(&text, data); err != nil {
		return email{}, fmt.Errorf("render text body: %w", err)
	}

	return email{
		to:      to,
		name:    name,
		subject: "Important: Your Account Needs Attention - " + a.CustomerID,
		html:    html.String(),
		text:    strings.TrimSpace(text.String()),
	}, nil
}
