package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	brevo "github.com/getbrevo/brevo-go/lib"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleQuote() QuoteEmail {
	return QuoteEmail{
		QuoteID:        "CS00042",
		Name:           "Ana <b>Silva</b>",
		Email:          "ana@example.com",
		Phone:          "+1 555 0100",
		IntendedUse:    "Immigration",
		SourceLanguage: "Portuguese",
		TargetLanguage: "English",
		Rate:           decimal.RequireFromString("50"),
		BillablePages:  3,
		Total:          decimal.RequireFromString("150"),
		Files: []FileLine{
			{Name: "birth.pdf", Pages: 2, Subtotal: decimal.RequireFromString("100")},
			{Name: "<script>x</script>id.png", Pages: 1, Subtotal: decimal.RequireFromString("50")},
		},
	}
}

func TestRender(t *testing.T) {
	htmlBody, textBody, err := Render(sampleQuote())
	require.NoError(t, err)

	assert.Contains(t, htmlBody, "Name: Ana Silva")
	assert.Contains(t, htmlBody, "<td>birth.pdf</td><td>2</td><td>$50.00</td><td>$100.00</td>")
	assert.Contains(t, htmlBody, "$150.00")
	assert.NotContains(t, htmlBody, "<script>")
	assert.NotContains(t, htmlBody, "<b>")

	assert.Contains(t, textBody, "Quote Review")
	assert.Contains(t, textBody, "birth.pdf")
	assert.NotContains(t, textBody, "<td>")
}

func TestBrevoSender_SendQuote(t *testing.T) {
	var got brevo.SendSmtpEmail
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/smtp/email", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("api-key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"messageId":"<1@brevo>"}`))
	}))
	defer srv.Close()

	s, err := NewBrevoSender(BrevoConfig{APIKey: "secret", URL: srv.URL, SenderEmail: "quotes@example.com", AdminEmail: "ops@example.com"}, srv.Client())
	require.NoError(t, err)
	require.NoError(t, s.SendQuote(context.Background(), sampleQuote()))

	assert.Equal(t, "Your Translation Quote", got.Subject)
	assert.Equal(t, []brevo.SendSmtpEmailTo{{Email: "ana@example.com", Name: "Ana Silva"}}, got.To)
	assert.Equal(t, []brevo.SendSmtpEmailBcc{{Email: "ops@example.com"}}, got.Bcc)
	require.NotNil(t, got.Sender)
	assert.Equal(t, "Quote Bot", got.Sender.Name)
	assert.Equal(t, []string{"quote"}, got.Tags)
	assert.NotEmpty(t, got.TextContent)
}

func TestBrevoSender_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"code":"unauthorized","message":"Key not found"}`))
	}))
	defer srv.Close()

	s, err := NewBrevoSender(BrevoConfig{APIKey: "bad", URL: srv.URL, SenderEmail: "quotes@example.com"}, nil)
	require.NoError(t, err)
	err = s.SendQuote(context.Background(), sampleQuote())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
	assert.Contains(t, err.Error(), "Key not found")
}

func TestBrevoSender_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	s, err := NewBrevoSender(BrevoConfig{APIKey: "k", URL: srv.URL, SenderEmail: "quotes@example.com"}, nil)
	require.NoError(t, err)
	err = s.SendQuote(context.Background(), sampleQuote())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to call Brevo")
}

func TestNewBrevoSender_RequiresKeyAndSender(t *testing.T) {
	_, err := NewBrevoSender(BrevoConfig{SenderEmail: "a@b.c"}, nil)
	assert.Error(t, err)
	_, err = NewBrevoSender(BrevoConfig{APIKey: "k"}, nil)
	assert.Error(t, err)
}
