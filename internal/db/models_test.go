package db

import "testing"

func TestResolvePreferences(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
		want Preferences
	}{
		{"absent", nil, Preferences{Push: true, SMS: true, Email: true, InApp: true}},
		{"empty", []byte{}, Preferences{Push: true, SMS: true, Email: true, InApp: true}},
		{"json null", []byte(`null`), Preferences{Push: true, SMS: true, Email: true, InApp: true}},
		{"empty object", []byte(`{}`), Preferences{Push: true, SMS: true, Email: true, InApp: true}},
		{"partial", []byte(`{"sms":false}`), Preferences{Push: true, SMS: false, Email: true, InApp: true}},
		{"explicit false", []byte(`{"push":false,"sms":false,"email":false,"inApp":false}`), Preferences{}},
		{"explicit null field", []byte(`{"email":null}`), Preferences{Push: true, SMS: true, Email: true, InApp: true}},
		{"undecodable", []byte(`{"push":`), Preferences{Push: true, SMS: true, Email: true, InApp: true}},
		{"wrong type", []byte(`{"push":"no"}`), Preferences{Push: true, SMS: true, Email: true, InApp: true}},
		{"unknown keys ignored", []byte(`{"fax":false,"push":false}`), Preferences{Push: false, SMS: true, Email: true, InApp: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolvePreferences(tt.raw)
			if got != tt.want {
				t.Errorf("ResolvePreferences(%q) = %+v, want %+v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestProjectPatchEmpty(t *testing.T) {
	if !(ProjectPatch{}).Empty() {
		t.Error("zero patch should be empty")
	}
	title := "x"
	if (ProjectPatch{Title: &title}).Empty() {
		t.Error("patch with a title is not empty")
	}
}
