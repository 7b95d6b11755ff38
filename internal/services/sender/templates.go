package sender

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
)

var layoutTemplate = template.Must(template.New("layout").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Subject}}</title>
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; margin: 0; padding: 0; background-color: #f5f5f5;">
<table role="presentation" style="width: 100%; border: 0; cellpadding: 0; cellspacing: 0;">
<tr><td style="padding: 40px 0; text-align: center;">
<table role="presentation" style="max-width: 480px; margin: 0 auto; background: #ffffff; border-radius: 8px; overflow: hidden;">
<tr><td style="padding: 32px 40px; text-align: left;">
<h1 style="margin: 0 0 16px; font-size: 22px; color: #1a1a1a;">{{.Subject}}</h1>
<p style="margin: 0 0 16px; color: #1a1a1a; font-size: 15px;">{{.Greeting}}</p>
{{range .Paragraphs}}<p style="margin: 0 0 16px; color: #666; font-size: 15px; line-height: 1.5;">{{.}}</p>
{{end}}{{if .ActionURL}}<a href="{{.ActionURL}}" style="display: inline-block; margin-top: 8px; padding: 12px 32px; background: #0f766e; color: #ffffff; text-decoration: none; border-radius: 6px; font-size: 15px; font-weight: 500;">{{.ActionLabel}}</a>
{{end}}</td></tr>
</table>
</td></tr>
</table>
</body>
</html>`))

// letter — содержимое письма до вёрстки.
type letter struct {
	Subject     string
	Greeting    string
	Paragraphs  []string
	ActionURL   string
	ActionLabel string
}

func (l letter) render() (html, text string, err error) {
	var buf bytes.Buffer
	if err := layoutTemplate.Execute(&buf, l); err != nil {
		return "", "", fmt.Errorf("render layout template: %w", err)
	}

	var sb strings.Builder
	sb.WriteString(l.Greeting)
	for _, p := range l.Paragraphs {
		sb.WriteString("\n\n")
		sb.WriteString(p)
	}
	if l.ActionURL != "" {
		sb.WriteString("\n\n")
		sb.WriteString(l.ActionLabel)
		sb.WriteString(": ")
		sb.WriteString(l.ActionURL)
	}
	return buf.String(), sb.String(), nil
}
