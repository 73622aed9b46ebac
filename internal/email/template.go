package email

import (
	"bytes"
	"html/template"
	"strings"
)

// Content is the body of a templated email.
type Content struct {
	Title   string
	Message string
	CTAText string
	CTAURL  string
}

var layout = template.Must(template.New("email").Parse(`<!DOCTYPE html>
<html>
<body style="margin:0;padding:0;background:#f5f6f8;font-family:Helvetica,Arial,sans-serif;">
<table role="presentation" width="100%" cellpadding="0" cellspacing="0">
<tr><td align="center" style="padding:32px 12px;">
<table role="presentation" width="560" cellpadding="0" cellspacing="0" style="background:#ffffff;border-radius:8px;">
<tr><td style="padding:32px;">
<h1 style="margin:0 0 16px;font-size:22px;color:#1f2937;">{{.Title}}</h1>
{{range .Paragraphs}}<p style="margin:0 0 12px;font-size:15px;line-height:22px;color:#374151;">{{.}}</p>
{{end}}{{if and .CTAText .CTAURL}}<p style="margin:24px 0 0;"><a href="{{.CTAURL}}" style="display:inline-block;padding:12px 20px;background:#2563eb;color:#ffffff;text-decoration:none;border-radius:6px;">{{.CTAText}}</a></p>
{{end}}</td></tr>
</table>
</td></tr>
</table>
</body>
</html>`))

// Render produces the HTML and plain-text parts for c.
func Render(c Content) (string, string, error) {
	var buf bytes.Buffer
	data := struct {
		Content
		Paragraphs []string
	}{Content: c, Paragraphs: paragraphs(c.Message)}
	if err := layout.Execute(&buf, data); err != nil {
		return "", "", err
	}
	text := c.Title + "\n\n" + c.Message
	if c.CTAText != "" && c.CTAURL != "" {
		text += "\n\n" + c.CTAText + ": " + c.CTAURL
	}
	return buf.String(), text, nil
}

func paragraphs(message string) []string {
	var out []string
	for _, p := range strings.Split(strings.ReplaceAll(message, "\r\n", "\n"), "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
