package classify

import "strings"

// SystemPrompt is installed as the system instruction of every provider.
const SystemPrompt = "You are a document intake analyst for a certified translation agency. You classify single pages of customer documents and you always answer with one strict JSON object and nothing else."

// UserPrompt builds the request for one page.
func UserPrompt(pageText string) string {
	var sb strings.Builder
	sb.WriteString(`Classify the page of text below.

Return STRICT JSON with exactly these keys:
- "complexity": one of "easy", "medium", "hard". Dense tables, stamps, handwriting, legal or technical language make a page harder.
- "doc_type": one of `)
	sb.WriteString(strings.Join(DocTypes, ", "))
	sb.WriteString(`.
- "primary_language": ISO 639-1 code of the main language on the page.
- "secondary_languages": array of ISO 639-1 codes of any other languages present.
- "names": array of at most 5 full personal names that appear on the page.
- "confidence": number between 0 and 1.

If the page is blank or unreadable use "other", "easy" and confidence 0.

Page text:
-----
`)
	sb.WriteString(pageText)
	sb.WriteString("\n-----")
	return sb.String()
}
