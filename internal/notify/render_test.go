package notify

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestRenderer_Plain(t *testing.T) {
	r := NewRenderer("Quorum", "https://quorum.example/")
	tests := []struct {
		in, want string
	}{
		{"Roof repair", "Roof repair"},
		{"<b>Roof</b> <script>alert(1)</script>repair", "Roof repair"},
		{"Tom &amp; Jerry", "Tom & Jerry"},
		{"  padded  ", "padded"},
	}
	for _, tt := range tests {
		if got := r.Plain(tt.in); got != tt.want {
			t.Errorf("Plain(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRenderer_SMS(t *testing.T) {
	r := NewRenderer("Quorum", "https://quorum.example")
	got := r.SMS("New Project: Roof", "<i>Alice</i> submitted a project")
	want := "Quorum:\n\nNew Project: Roof\n\nAlice submitted a project"
	if got != want {
		t.Fatalf("SMS = %q", got)
	}
}

func TestRenderer_ProjectLink(t *testing.T) {
	r := NewRenderer("Quorum", "https://quorum.example/")
	id := uuid.MustParse("7f0c1c1e-2b8e-4c59-9d7e-1d3f3a0f6b11")

	if got := r.ProjectLink(&id); got != "https://quorum.example/projects/7f0c1c1e-2b8e-4c59-9d7e-1d3f3a0f6b11" {
		t.Errorf("link = %s", got)
	}
	if got := r.ProjectLink(nil); got != "https://quorum.example" {
		t.Errorf("link without project = %s", got)
	}
}

func TestRenderer_Email(t *testing.T) {
	r := NewRenderer("Quorum", "https://quorum.example")
	r.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	id := uuid.New()

	subject, html, text, err := r.Email("Project Approved: Roof", `Your project "Roof" <b>is approved</b>`, &id, false)
	if err != nil {
		t.Fatal(err)
	}
	if subject != "Project Approved: Roof" {
		t.Errorf("subject = %q", subject)
	}
	for _, want := range []string{"#4F46E5", "View Project", "/projects/" + id.String(), "Quorum &copy; 2026"} {
		if !strings.Contains(html, want) {
			t.Errorf("html missing %q", want)
		}
	}
	if strings.Contains(html, "<b>") {
		t.Error("markup from the message must not reach the html body")
	}
	if !strings.Contains(text, "View project: https://quorum.example/projects/"+id.String()) {
		t.Errorf("text = %q", text)
	}

	_, reminderHTML, _, err := r.Email("Reminder: Review Roof", "m", &id, true)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(reminderHTML, "#F59E0B") {
		t.Error("reminder email should use the amber accent")
	}
}
