// Package notify sends the finished quote to the customer.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"html/template"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
	"github.com/shopspring/decimal"
)

// FileLine is one row of the quote table.
type FileLine struct {
	Name     string          `json:"name"`
	Pages    int             `json:"pages"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

// QuoteEmail is everything the quote email shows.
type QuoteEmail struct {
	QuoteID        string          `json:"quoteId"`
	Name           string          `json:"name"`
	Email          string          `json:"email"`
	Phone          string          `json:"phone"`
	IntendedUse    string          `json:"intendedUse"`
	SourceLanguage string          `json:"sourceLanguage"`
	TargetLanguage string          `json:"targetLanguage"`
	Rate           decimal.Decimal `json:"rate"`
	BillablePages  int             `json:"billablePages"`
	Total          decimal.Decimal `json:"total"`
	Files          []FileLine      `json:"files"`
}

// Sender delivers a quote email.
type Sender interface {
	SendQuote(ctx context.Context, q QuoteEmail) error
}

const subject = "Your Translation Quote"

var quoteTemplate = template.Must(template.New("quote").Parse(`<html><body>
<h1>Quote Review</h1>
<p>Quote: {{.QuoteID}}<br/>Name: {{.Name}}<br/>Phone: {{.Phone}}<br/>Intended Use: {{.IntendedUse}}<br/>Source: {{.SourceLanguage}} -&gt; Target: {{.TargetLanguage}}</p>
<table border="1" cellpadding="5" cellspacing="0">
<thead><tr><th>Filename</th><th>Billable Pages</th><th>Rate</th><th>Total</th></tr></thead>
<tbody>{{range .Files}}<tr><td>{{.Name}}</td><td>{{.Pages}}</td><td>${{$.Rate.StringFixed 2}}</td><td>${{.Subtotal.StringFixed 2}}</td></tr>{{end}}</tbody>
<tfoot><tr><td>Total Billable Pages</td><td>{{.BillablePages}}</td><td></td><td>${{.Total.StringFixed 2}}</td></tr></tfoot>
</table>
</body></html>`))

var textPolicy = bluemonday.StrictPolicy()

var mdConverter = converter.NewConverter(
	converter.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
		table.NewTablePlugin(),
	),
)

// plainText drops markup and leaves escaping to the template.
func plainText(s string) string {
	return html.UnescapeString(textPolicy.Sanitize(s))
}

// Render returns the HTML body and a plain-text alternative. Customer-supplied
// fields are stripped of markup before they are rendered.
func Render(q QuoteEmail) (htmlBody, textBody string, err error) {
	q.Name = plainText(q.Name)
	q.Phone = plainText(q.Phone)
	q.IntendedUse = plainText(q.IntendedUse)
	q.SourceLanguage = plainText(q.SourceLanguage)
	q.TargetLanguage = plainText(q.TargetLanguage)
	files := make([]FileLine, len(q.Files))
	for i, f := range q.Files {
		f.Name = plainText(f.Name)
		files[i] = f
	}
	q.Files = files

	var buf bytes.Buffer
	if err := quoteTemplate.Execute(&buf, q); err != nil {
		return "", "", fmt.Errorf("failed to render quote email: %w", err)
	}
	htmlBody = buf.String()
	textBody, err = mdConverter.ConvertString(htmlBody)
	if err != nil {
		return "", "", fmt.Errorf("failed to render plain-text quote: %w", err)
	}
	return htmlBody, textBody, nil
}
