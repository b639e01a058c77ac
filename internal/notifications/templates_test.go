package notifications

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/activityhub-backend/pkg/enums"
)

func TestDefaultTemplatesRenderEveryAudience(t *testing.T) {
	tpl, err := DefaultTemplates()
	require.NoError(t, err)

	view := BookingView{
		BookingID:               "b-1",
		ActivityTitle:           "Sunset Kayak",
		CustomerName:            "Ana",
		CustomerEmail:           "ana@example.com",
		Participants:            2,
		Total:                   "100.00 EUR",
		PlatformFee:             "20.00 EUR",
		ProviderAmount:          "80.00 EUR",
		EstablishmentCommission: "10.00 EUR",
		ProviderName:            "Sea Kayaks",
		PartnerName:             "Hotel Mar",
		EstablishmentName:       "Hotel Mar",
	}

	subject, text, html, err := tpl.Render(enums.NotificationAudienceCustomer, view)
	require.NoError(t, err)
	assert.Equal(t, "Your booking for Sunset Kayak is confirmed", subject)
	assert.Contains(t, text, "Total paid: 100.00 EUR")
	assert.Contains(t, html, "<strong>Sunset Kayak</strong>")

	_, text, _, err = tpl.Render(enums.NotificationAudienceProvider, view)
	require.NoError(t, err)
	assert.Contains(t, text, "Your payout: 80.00 EUR")
	assert.NotContains(t, text, "Commission invoice")

	view.Invoice = "INV-20260402-ABCDEF12"
	_, text, _, err = tpl.Render(enums.NotificationAudienceProvider, view)
	require.NoError(t, err)
	assert.Contains(t, text, "Commission invoice: INV-20260402-ABCDEF12")

	subject, text, _, err = tpl.Render(enums.NotificationAudiencePartner, view)
	require.NoError(t, err)
	assert.Equal(t, "Commission earned on Sunset Kayak", subject)
	assert.Contains(t, text, "Your commission: 10.00 EUR")
}

func TestHTMLBodyEscapesCustomerInput(t *testing.T) {
	tpl, err := DefaultTemplates()
	require.NoError(t, err)

	_, text, html, err := tpl.Render(enums.NotificationAudienceCustomer, BookingView{CustomerName: "<b>Ana</b>", ActivityTitle: "Kayak"})
	require.NoError(t, err)
	assert.Contains(t, text, "Hi <b>Ana</b>,")
	assert.Contains(t, html, "&lt;b&gt;Ana&lt;/b&gt;")
}

func TestLoadTemplatesRejectsIncompleteDocuments(t *testing.T) {
	_, err := LoadTemplates([]byte(`
customer:
  subject: "hi"
  text: "body"
`))
	assert.ErrorContains(t, err, "missing template")

	_, err = LoadTemplates([]byte(`
admin:
  subject: "hi"
  text: "body"
`))
	assert.Error(t, err)

	_, err = LoadTemplates([]byte(`
customer:
  subject: "{{ .Broken"
  text: "body"
`))
	assert.ErrorContains(t, err, "customer subject")
}
