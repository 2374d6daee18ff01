package functions

import (
	"bytes"
	"html/template"
)

const (
	defaultSubject = "Test Email from Dropzone Edge Function"
	defaultMessage = "This is a test email sent from a Dropzone edge function using Resend."
)

var emailTemplate = template.Must(template.New("email").Parse(`
<div style="font-family: sans-serif; max-width: 600px; margin: 0 auto;">
  <h1 style="color: #333; font-size: 24px;">{{.Subject}}</h1>
  <p style="color: #666; font-size: 16px; line-height: 1.5;">{{.Message}}</p>
  <div style="margin-top: 24px; padding-top: 24px; border-top: 1px solid #eee;">
    <p style="color: #999; font-size: 14px;">This is an automated message from your application.</p>
  </div>
</div>
`))

func renderEmail(subject, message string) (string, error) {
	var buf bytes.Buffer
	err := emailTemplate.Execute(&buf, struct{ Subject, Message string }{subject, message})
	return buf.String(), err
}
