package service_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/unclebandit/campaign-dispatcher/internal/service"
)

func TestRenderTemplate(t *testing.T) {
	tests := []struct {
		name     string
		template string
		user     string
		want     string
	}{
		{name: "single placeholder", template: "Hi {{name}}", user: "Alice", want: "Hi Alice"},
		{name: "repeated placeholder", template: "{{name}}, yes {{name}}!", user: "Bo", want: "Bo, yes Bo!"},
		{name: "no placeholder", template: "Sale today", user: "Alice", want: "Sale today"},
		{name: "other placeholders untouched", template: "Hi {{ name }} {{email}}", user: "Alice", want: "Hi {{ name }} {{email}}"},
		{name: "no escaping", template: "<b>{{name}}</b>", user: "<i>Al</i>", want: "<b><i>Al</i></b>"},
		{name: "empty template", template: "", user: "Alice", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, service.RenderTemplate(tt.template, tt.user))
		})
	}
}
