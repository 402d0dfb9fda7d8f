// Package email provides email sending capabilities via SMTP.
package email

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"
)

// Config holds SMTP configuration
type Config struct {
	Host      string
	Port      string
	Username  string
	Password  string
	From      string
	FromName  string
	EnableTLS bool
}

// Service provides email sending
type Service struct {
	config Config
	server string
	auth   smtp.Auth
}

// NewService creates a new email service
func NewService(config Config) *Service {
	auth := smtp.PlainAuth("", config.Username, config.Password, config.Host)

	return &Service{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   auth,
	}
}

// IsConfigured returns true if email is configured
func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

// SendEmail sends a plain text email
func (s *Service) SendEmail(to []string, subject, body string) error {
	if !s.IsConfigured() {
		return fmt.Errorf("email not configured")
	}

	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}

	msg := []byte(fmt.Sprintf(
		"To: %s\r\n"+
			"From: %s\r\n"+
			"Subject: %s\r\n"+
			"Content-Type: text/plain; charset=UTF-8\r\n"+
			"\r\n"+
			"%s",
		strings.Join(to, ", "),
		from,
		subject,
		body,
	))

	return smtp.SendMail(s.server, s.auth, s.config.From, to, msg)
}

// SendHTMLEmail sends an HTML email
func (s *Service) SendHTMLEmail(to []string, subject, htmlBody string) error {
	if !s.IsConfigured() {
		return fmt.Errorf("email not configured")
	}

	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}

	// Simple multipart message
	boundary := "boundary-landgov"

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary)
	fmt.Fprintf(&msg, "\r\n")

	// Plain text part (fallback)
	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/plain; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "Please view this email in an HTML-capable email client.\r\n")
	fmt.Fprintf(&msg, "\r\n")

	// HTML part
	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/html; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", htmlBody)
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)

	return smtp.SendMail(s.server, s.auth, s.config.From, to, msg.Bytes())
}

// AllocationData holds data for the allocation decision email.
type AllocationData struct {
	AppName  string
	UserName string
	AreaName string
	PlotID   int
	Decision string
	Remark   string
}

// ViolationData holds data for the violation notice email.
type ViolationData struct {
	AppName  string
	AreaName string
	PlotID   string
	Comments string
}

// SendAllocationDecision notifies a citizen about the outcome of their
// land request at the state level.
func (s *Service) SendAllocationDecision(to, userName, areaName string, plotID int, approved bool, remark string) error {
	decision := "rejected"
	subject := "Update on your land request"
	if approved {
		decision = "approved"
		subject = "Your land request has been approved"
	}

	data := AllocationData{
		AppName:  "Land Allocation Portal",
		UserName: userName,
		AreaName: areaName,
		PlotID:   plotID,
		Decision: decision,
		Remark:   remark,
	}

	html, err := renderTemplate(allocationEmailTemplate, data)
	if err != nil {
		return fmt.Errorf("render allocation template: %w", err)
	}

	return s.SendHTMLEmail([]string{to}, subject, html)
}

// SendViolationNotice informs a plot owner that an encroachment violation
// has been raised against their plot.
func (s *Service) SendViolationNotice(to, areaName, plotID, comments string) error {
	data := ViolationData{
		AppName:  "Land Allocation Portal",
		AreaName: areaName,
		PlotID:   plotID,
		Comments: comments,
	}

	html, err := renderTemplate(violationEmailTemplate, data)
	if err != nil {
		return fmt.Errorf("render violation template: %w", err)
	}

	return s.SendHTMLEmail([]string{to}, "Encroachment violation raised against your plot", html)
}

func renderTemplate(tmpl string, data interface{}) (string, error) {
	t := template.Must(template.New("email").Parse(tmpl))
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const allocationEmailTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Land request {{.Decision}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #1a6b3c; padding-bottom: 10px; margin-bottom: 20px; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
        .remark { background: #f4f6f4; padding: 12px; border-radius: 4px; margin: 20px 0; }
    </style>
</head>
<body>
    <div class="header">
        <h1>{{.AppName}}</h1>
    </div>

    <h2>Hello, {{.UserName}}</h2>

    <p>Your request for plot {{.PlotID}} in {{.AreaName}} has been <strong>{{.Decision}}</strong> by the state administration.</p>

    {{if .Remark}}<div class="remark">{{.Remark}}</div>{{end}}

    <p>Sign in to the portal to view the full details of your request{{if eq .Decision "approved"}} and your new lease{{end}}.</p>

    <div class="footer">
        <p>This is an automated notification from {{.AppName}}. Replies to this address are not monitored.</p>
    </div>
</body>
</html>`

const violationEmailTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Encroachment violation notice</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #a33; padding-bottom: 10px; margin-bottom: 20px; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
        .warning { background: #fff3cd; padding: 12px; border-radius: 4px; margin: 20px 0; }
    </style>
</head>
<body>
    <div class="header">
        <h1>{{.AppName}}</h1>
    </div>

    <h2>Violation notice for plot {{.PlotID}} in {{.AreaName}}</h2>

    <p>An encroachment analysis has flagged your plot for a possible boundary violation.</p>

    {{if .Comments}}<div class="warning"><strong>Administrator remarks:</strong> {{.Comments}}</div>{{end}}

    <p>You may appeal this decision through the portal. Appeals are first heard by the district administration.</p>

    <div class="footer">
        <p>This is an automated notification from {{.AppName}}. Replies to this address are not monitored.</p>
    </div>
</body>
</html>`
