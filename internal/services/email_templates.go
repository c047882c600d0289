// internal/services/email_templates.go
package services

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/javajoker/provenance-backend/internal/models"
)

type EmailContent struct {
	Subject string
	HTML    string
}

type emailDetail struct {
	Label string
	Value string
}

type emailAction struct {
	Text string
	URL  string
}

type emailView struct {
	Title   string
	Message string
	Accent  template.CSS
	Details []emailDetail
	Action  *emailAction
	AppURL  string
}

type emailStyle struct {
	subject  string
	fallback string
	accent   template.CSS
	action   string
	path     string
	idKey    string
}

var emailStyles = map[models.NotificationType]emailStyle{
	models.NotificationProductRegistered: {"Product Successfully Registered", "Your Product", "#10b981", "View Product", "products", "product_id"},
	models.NotificationInvoiceReceived:   {"New Invoice Received", "Product Sale", "#3b82f6", "View Invoice", "invoices", "invoice_id"},
	models.NotificationTransferPending:   {"Transfer Signature Required", "Product Transfer", "#f59e0b", "Sign Transfer", "transfers", "certificate_id"},
	models.NotificationTransferSigned:    {"Transfer Certificate Signed", "Product Transfer", "#6366f1", "View Transfer", "transfers", "certificate_id"},
	models.NotificationTransferCompleted: {"Ownership Transfer Complete", "Product Transfer", "#10b981", "View Product", "products", "product_id"},
}

var emailLayout = template.Must(template.New("email").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<title>{{.Title}}</title>
</head>
<body style="margin: 0; padding: 0; font-family: Helvetica, Arial, sans-serif; background-color: #f8fafc;">
<div style="max-width: 600px; margin: 0 auto; background-color: #ffffff;">
<div style="background-color: #667eea; padding: 24px; text-align: center;">
<h1 style="color: #ffffff; margin: 0; font-size: 24px;">Product Provenance</h1>
</div>
<div style="padding: 40px 30px;">
<h2 style="color: #1f2937; margin: 0 0 24px;">{{.Title}}</h2>
<p style="color: #374151; border-left: 4px solid {{.Accent}}; padding: 16px; background-color: #f9fafb;">{{.Message}}</p>
{{- if .Details}}
<table style="width: 100%; margin: 24px 0;">
{{- range .Details}}
<tr><td style="color: #6b7280;">{{.Label}}</td><td style="color: #1f2937;">{{.Value}}</td></tr>
{{- end}}
</table>
{{- end}}
{{- if .Action}}
<p style="text-align: center;"><a href="{{.Action.URL}}" style="background-color: {{.Accent}}; color: #ffffff; padding: 14px 28px; text-decoration: none;">{{.Action.Text}}</a></p>
{{- end}}
<p style="color: #6b7280; font-size: 14px;">This notification was sent from Product Provenance.</p>
<p><a href="{{.AppURL}}" style="color: #3b82f6;">Open Product Provenance</a></p>
</div>
</div>
</body>
</html>
`))

// RenderNotificationEmail builds the email sent alongside an in-app notification.
func RenderNotificationEmail(appURL string, n *models.Notification) (*EmailContent, error) {
	appURL = strings.TrimRight(appURL, "/")
	style, ok := emailStyles[n.Type]
	if !ok {
		style = emailStyle{accent: "#6b7280"}
	}

	view := emailView{
		Title:   n.Title,
		Message: n.Message,
		Accent:  style.accent,
		Details: emailDetails(n.Data),
		AppURL:  appURL,
	}
	if id, ok := n.Data[style.idKey]; ok && style.action != "" {
		view.Action = &emailAction{
			Text: style.action,
			URL:  fmt.Sprintf("%s/%s/%v", appURL, style.path, id),
		}
	}

	var buf bytes.Buffer
	if err := emailLayout.Execute(&buf, view); err != nil {
		return nil, fmt.Errorf("failed to render email template: %w", err)
	}

	subject := n.Title
	if style.subject != "" {
		name, _ := n.Data["product_name"].(string)
		if name == "" {
			name = style.fallback
		}
		subject = style.subject + " - " + name
	}

	return &EmailContent{Subject: subject, HTML: buf.String()}, nil
}

func emailDetails(data map[string]interface{}) []emailDetail {
	var details []emailDetail
	if v, ok := data["product_name"]; ok {
		details = append(details, emailDetail{"Product", fmt.Sprint(v)})
	}
	if v, ok := data["product_id"]; ok {
		details = append(details, emailDetail{"Product ID", fmt.Sprintf("#%v", v)})
	}
	if v, ok := data["invoice_id"]; ok {
		details = append(details, emailDetail{"Invoice ID", fmt.Sprintf("#%v", v)})
	}
	if v, ok := data["certificate_id"]; ok {
		details = append(details, emailDetail{"Certificate ID", fmt.Sprintf("#%v", v)})
	}
	if v, ok := data["amount"]; ok {
		currency, _ := data["currency"].(string)
		details = append(details, emailDetail{"Amount", strings.TrimSpace(fmt.Sprintf("%v %s", v, currency))})
	}
	if v, ok := data["transaction_hash"].(string); ok && len(v) > 18 {
		details = append(details, emailDetail{"Transaction", v[:10] + "..." + v[len(v)-8:]})
	}
	return details
}
