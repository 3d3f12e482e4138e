package notify

import (
	"bytes"
	"fmt"
	"html"
	"html/template"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
)

const emailLayout = `<!DOCTYPE html>
<html>
<head>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
    .container { max-width: 600px; margin: 0 auto; padding: 20px; }
    .header { background-color: {{.Accent}}; color: white; padding: 30px; text-align: center; }
    .content { background-color: #f9fafb; padding: 30px; }
    .title { color: {{.Accent}}; font-size: 24px; margin-bottom: 15px; }
    .button { display: inline-block; background-color: #10B981; color: white; padding: 12px 30px; text-decoration: none; border-radius: 5px; margin: 20px 0; }
    .footer { text-align: center; color: #6b7280; font-size: 12px; margin-top: 30px; }
  </style>
</head>
<body>
  <div class="container">
    <div class="header"><h1>{{.Product}}</h1></div>
    <div class="content">
      <h2 class="title">{{.Title}}</h2>
      <p>{{.Message}}</p>
      <p style="text-align: center;"><a href="{{.Link}}" class="button">View Project</a></p>
    </div>
    <div class="footer"><p>{{.Product}} &copy; {{.Year}}</p></div>
  </div>
</body>
</html>`

// Renderer turns a notification title and message into per-channel bodies.
// User-supplied text is stripped of markup before it lands in a plain-text
// body and escaped by html/template in the HTML body.
type Renderer struct {
	product     string
	frontendURL string
	policy      *bluemonday.Policy
	email       *template.Template
	now         func() time.Time
}

type emailView struct {
	Product string
	Accent  template.CSS
	Title   string
	Message string
	Link    string
	Year    int
}

// NewRenderer builds a renderer that links into frontendURL
func NewRenderer(product, frontendURL string) *Renderer {
	return &Renderer{
		product:     product,
		frontendURL: strings.TrimRight(frontendURL, "/"),
		policy:      bluemonday.StrictPolicy(),
		email:       template.Must(template.New("email").Parse(emailLayout)),
		now:         time.Now,
	}
}

// Plain strips every tag and decodes entities
func (r *Renderer) Plain(s string) string {
	return strings.TrimSpace(html.UnescapeString(r.policy.Sanitize(s)))
}

// ProjectLink points at the project page, or the frontend root without a project
func (r *Renderer) ProjectLink(projectID *uuid.UUID) string {
	if projectID == nil {
		return r.frontendURL
	}
	return fmt.Sprintf("%s/projects/%s", r.frontendURL, projectID)
}

// SMS renders the text message body
func (r *Renderer) SMS(title, message string) string {
	return fmt.Sprintf("%s:\n\n%s\n\n%s", r.product, r.Plain(title), r.Plain(message))
}

// Push renders the push title and body
func (r *Renderer) Push(title, message string) (string, string) {
	return r.Plain(title), r.Plain(message)
}

// Email renders subject, HTML and plain-text bodies
func (r *Renderer) Email(title, message string, projectID *uuid.UUID, reminder bool) (string, string, string, error) {
	subject := r.Plain(title)
	link := r.ProjectLink(projectID)

	accent := template.CSS("#4F46E5")
	if reminder {
		accent = "#F59E0B"
	}

	var buf bytes.Buffer
	err := r.email.Execute(&buf, emailView{
		Product: r.product,
		Accent:  accent,
		Title:   subject,
		Message: r.Plain(message),
		Link:    link,
		Year:    r.now().Year(),
	})
	if err != nil {
		return "", "", "", fmt.Errorf("render email: %w", err)
	}

	text := fmt.Sprintf("%s\n\n%s\n\nView project: %s", subject, r.Plain(message), link)
	return subject, buf.String(), text, nil
}
