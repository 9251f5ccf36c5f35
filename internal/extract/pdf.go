package extract

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// extractPDF reads the native text layer of every page. Pages without text
// are kept so page numbers stay aligned with the physical document.
func extractPDF(data []byte) ([]Page, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
	if err != nil {
		return nil, fmt.Errorf("pdfcpu read: %w", err)
	}

	pages := make([]Page, 0, ctx.PageCount)
	for nr := 1; nr <= ctx.PageCount; nr++ {
		text, err := pdfPageText(ctx, nr)
		if err != nil {
			slog.Warn("Could not read PDF page content, treating as empty.", "page", nr, "error", err)
		}
		pages = append(pages, newPage(nr, text, nil))
	}
	return pages, nil
}

func pdfPageText(ctx *model.Context, pageNr int) (string, error) {
	r, err := pdfcpu.ExtractPageContent(ctx, pageNr)
	if err != nil {
		return "", err
	}
	if r == nil {
		return "", nil
	}
	content, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return textFromContentStream(content), nil
}

// textFromContentStream walks a page content stream and collects the
// operands of the text-showing operators (Tj, TJ, ' and ").
func textFromContentStream(content []byte) string {
	var out strings.Builder
	var operands []string

	for i := 0; i < len(content); {
		c := content[i]
		switch {
		case c == '%':
			for i < len(content) && content[i] != '\n' && content[i] != '\r' {
				i++
			}
		case c == '/':
			i++
			for i < len(content) && !isSpace(content[i]) && !strings.ContainsRune("/[]()<>{}%", rune(content[i])) {
				i++
			}
		case c == '(':
			s, next := readLiteralString(content, i)
			operands = append(operands, s)
			i = next
		case c == '<' && i+1 < len(content) && content[i+1] == '<':
			i += 2
		case c == '>' && i+1 < len(content) && content[i+1] == '>':
			i += 2
		case c == '<':
			s, next := readHexString(content, i)
			operands = append(operands, s)
			i = next
		case isOperatorByte(c):
			start := i
			for i < len(content) && isOperatorByte(content[i]) {
				i++
			}
			op := string(content[start:i])
			if op == "ID" {
				i = skipInlineImage(content, i)
			}
			applyTextOperator(&out, op, operands)
			operands = operands[:0]
		default:
			i++
		}
	}
	return out.String()
}

func applyTextOperator(out *strings.Builder, op string, operands []string) {
	switch op {
	case "Tj", "TJ":
		for _, s := range operands {
			out.WriteString(s)
		}
	case "'", `"`:
		out.WriteByte('\n')
		for _, s := range operands {
			out.WriteString(s)
		}
	case "T*", "ET":
		out.WriteByte('\n')
	case "Td", "TD", "Tm":
		out.WriteByte(' ')
	}
}

func isOperatorByte(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '*' || c == '\'' || c == '"'
}

// readLiteralString parses a (...) string starting at content[start],
// honouring nested parentheses and backslash escapes.
func readLiteralString(content []byte, start int) (string, int) {
	var sb strings.Builder
	depth := 0
	i := start
	for i < len(content) {
		c := content[i]
		switch c {
		case '(':
			if depth > 0 {
				sb.WriteByte(c)
			}
			depth++
			i++
		case ')':
			depth--
			i++
			if depth == 0 {
				return sb.String(), i
			}
			sb.WriteByte(c)
		case '\\':
			i = readEscape(content, i+1, &sb)
		default:
			sb.WriteByte(c)
			i++
		}
	}
	return sb.String(), i
}

func readEscape(content []byte, i int, sb *strings.Builder) int {
	if i >= len(content) {
		return i
	}
	switch c := content[i]; c {
	case 'n':
		sb.WriteByte('\n')
	case 'r':
		sb.WriteByte('\r')
	case 't':
		sb.WriteByte('\t')
	case 'b', 'f':
	case '\r', '\n':
		// Line continuation.
	default:
		if c >= '0' && c <= '7' {
			val := 0
			n := 0
			for n < 3 && i < len(content) && content[i] >= '0' && content[i] <= '7' {
				val = val*8 + int(content[i]-'0')
				i++
				n++
			}
			sb.WriteByte(byte(val))
			return i
		}
		sb.WriteByte(c)
	}
	return i + 1
}

// readHexString decodes a <...> string. Hex strings in CID fonts are glyph
// ids, not text, so anything that is not printable ASCII is dropped.
func readHexString(content []byte, start int) (string, int) {
	end := bytes.IndexByte(content[start:], '>')
	if end < 0 {
		return "", len(content)
	}
	raw := bytes.Map(func(r rune) rune {
		if strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return r
		}
		return -1
	}, content[start+1:start+end])
	if len(raw)%2 == 1 {
		raw = append(raw, '0')
	}
	decoded, err := hex.DecodeString(string(raw))
	if err != nil {
		return "", start + end + 1
	}
	for _, b := range decoded {
		if b < 0x20 || b > 0x7e {
			return "", start + end + 1
		}
	}
	return string(decoded), start + end + 1
}

// skipInlineImage jumps past binary inline image data up to the EI operator.
func skipInlineImage(content []byte, i int) int {
	idx := bytes.Index(content[i:], []byte("EI"))
	for idx >= 0 {
		pos := i + idx
		before := pos == 0 || isSpace(content[pos-1])
		after := pos+2 >= len(content) || isSpace(content[pos+2])
		if before && after {
			return pos + 2
		}
		next := bytes.Index(content[pos+2:], []byte("EI"))
		if next < 0 {
			break
		}
		idx = pos + 2 + next - i
	}
	return len(content)
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t' || c == '\f' || c == 0
}
