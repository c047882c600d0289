package services

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/provenance-backend/internal/models"
)

func TestRenderNotificationEmailTransferPending(t *testing.T) {
	n := &models.Notification{
		Type:    models.NotificationTransferPending,
		Title:   "Transfer Pending",
		Message: "Please sign the transfer certificate for Vintage Watch",
		Data: map[string]interface{}{
			"product_name":   "Vintage Watch",
			"product_id":     1,
			"certificate_id": 1,
		},
	}

	email, err := RenderNotificationEmail("http://localhost:3000/", n)
	require.NoError(t, err)
	assert.Equal(t, "Transfer Signature Required - Vintage Watch", email.Subject)

	g := goldie.New(t)
	g.Assert(t, "transfer_pending_email", []byte(email.HTML))
}

func TestRenderNotificationEmailSubjectFallback(t *testing.T) {
	n := &models.Notification{
		Type:    models.NotificationInvoiceReceived,
		Title:   "New Invoice",
		Message: "You have a new invoice",
		Data:    map[string]interface{}{"invoice_id": 7, "amount": 250.5, "currency": "USD"},
	}

	email, err := RenderNotificationEmail("https://app.example.com", n)
	require.NoError(t, err)
	assert.Equal(t, "New Invoice Received - Product Sale", email.Subject)
	assert.Contains(t, email.HTML, `href="https://app.example.com/invoices/7"`)
	assert.Contains(t, email.HTML, "250.5 USD")
	assert.NotContains(t, email.HTML, "Product ID")
}

func TestRenderNotificationEmailUnknownTypeHasNoAction(t *testing.T) {
	n := &models.Notification{Type: "CUSTOM", Title: "Hello", Message: "World"}

	email, err := RenderNotificationEmail("https://app.example.com", n)
	require.NoError(t, err)
	assert.Equal(t, "Hello", email.Subject)
	assert.NotContains(t, email.HTML, "text-align: center;\"><a")
}
