package core

import (
	"bytes"
	htmltmpl "html/template"
	"net/mail"
	"sync"
	texttmpl "text/template"
)

// Email templates are compiled in; the frontend owns all presentation so a
// plain transactional skin is enough here.
var (
	textTemplates = map[string]string{
		"password-reset": `Hi {{ .Data.Username }},

You requested a password reset for your {{ .Data.AppName }} account.
Please follow the link below to set a new password:

{{ .FrontendBaseURL }}/password-reset/{{ .Data.UID }}/{{ .Data.Token }}

If you did not request this, you can safely ignore this email.
`,
	}
	htmlTemplates = map[string]string{
		"password-reset": `<p>Hi {{ .Data.Username }},</p>
<p>You requested a password reset for your {{ .Data.AppName }} account.
Please follow the link below to set a new password:</p>
<p><a href="{{ .FrontendBaseURL }}/password-reset/{{ .Data.UID }}/{{ .Data.Token }}">Reset password</a></p>
<p>If you did not request this, you can safely ignore this email.</p>
`,
	}

	parsedText map[string]*texttmpl.Template
	parsedHTML map[string]*htmltmpl.Template
	tmplInit   sync.Once
)

type (
	EmailMessage struct {
		To      []mail.Address
		Cc      []mail.Address
		Bcc     []mail.Address
		Subject string
		BodyStr string // simple text/plain, non-templated content

		// templated contents
		TemplateName string
		TemplateData interface{}
		TextContent  string
		HTMLContent  string
	}

	ContextData struct {
		FrontendBaseURL string
		Data            interface{}
	}

	// EmailService is any service that can send emails.
	EmailService interface {
		// SendMessages sends messages concurrently
		SendMessages(messages ...*EmailMessage)
	}
)

func parseTemplates() {
	parsedText = make(map[string]*texttmpl.Template, len(textTemplates))
	for name, body := range textTemplates {
		parsedText[name] = texttmpl.Must(texttmpl.New(name).Parse(body))
	}
	parsedHTML = make(map[string]*htmltmpl.Template, len(htmlTemplates))
	for name, body := range htmlTemplates {
		parsedHTML[name] = htmltmpl.Must(htmltmpl.New(name).Parse(body))
	}
}

func (m *EmailMessage) getContextData(conf *Config) ContextData {
	return ContextData{
		FrontendBaseURL: conf.FrontendBaseURL,
		Data:            m.TemplateData,
	}
}

func (m *EmailMessage) renderText(conf *Config) error {
	if m.BodyStr != "" {
		m.TextContent = m.BodyStr
		return nil
	} else if m.TemplateName == "" {
		return nil
	}

	tmpl, ok := parsedText[m.TemplateName]
	if !ok {
		return nil
	}
	var buff bytes.Buffer
	if err := tmpl.Execute(&buff, m.getContextData(conf)); err != nil {
		return err
	}
	m.TextContent = buff.String()
	return nil
}

func (m *EmailMessage) renderHTML(conf *Config) error {
	if m.TemplateName == "" {
		return nil
	}

	tmpl, ok := parsedHTML[m.TemplateName]
	if !ok {
		return nil
	}
	var buff bytes.Buffer
	if err := tmpl.Execute(&buff, m.getContextData(conf)); err != nil {
		return err
	}
	m.HTMLContent = buff.String()
	return nil
}

func (m *EmailMessage) Render(conf *Config) error {
	if m.TemplateName != "" {
		tmplInit.Do(parseTemplates)
	}
	if err := m.renderText(conf); err != nil {
		return err
	}
	return m.renderHTML(conf)
}

func (m *EmailMessage) HasRecipients() bool { return len(m.To) > 0 }
func (m *EmailMessage) HasContent() bool    { return (m.TextContent != "") || (m.HTMLContent != "") }
