package tmpl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	type msg struct {
		Sender string
		Text   string
	}

	tests := []struct {
		name    string
		tmpl    string
		data    any
		want    string
		wantErr bool
	}{
		{
			name: "struct data",
			tmpl: "{{ .Sender }}: {{ .Text }}",
			data: msg{Sender: "bob", Text: "hi"},
			want: "bob: hi",
		},
		{
			name: "no variables",
			tmpl: "static string",
			data: nil,
			want: "static string",
		},
		{
			name:    "missing key errors",
			tmpl:    "{{ .Missing }}",
			data:    map[string]string{"Sender": "bob"},
			wantErr: true,
		},
		{
			name:    "invalid template syntax",
			tmpl:    "{{ .Sender }",
			data:    msg{},
			wantErr: true,
		},
		{
			name: "shq with spaces",
			tmpl: "notify-send {{ .Text | shq }}",
			data: msg{Text: "hello world"},
			want: "notify-send 'hello world'",
		},
		{
			name: "shq with single quotes",
			tmpl: "echo {{ .Text | shq }}",
			data: msg{Text: "it's a test"},
			want: `echo 'it'\''s a test'`,
		},
		{
			name: "shq with empty string",
			tmpl: "echo {{ .Text | shq }}",
			data: msg{},
			want: "echo ''",
		},
		{
			name: "shq with command substitution",
			tmpl: "echo {{ .Text | shq }}",
			data: msg{Text: "$(whoami) && rm -rf /"},
			want: "echo '$(whoami) && rm -rf /'",
		},
		{
			name: "trunc",
			tmpl: "{{ .Text | trunc 6 }}",
			data: msg{Text: "héllo world"},
			want: "héllo…",
		},
		{
			name: "trunc short text unchanged",
			tmpl: "{{ .Text | trunc 20 }}",
			data: msg{Text: "hi"},
			want: "hi",
		},
		{
			name: "oneline then shq",
			tmpl: "{{ .Text | oneline | shq }}",
			data: msg{Text: "line one\n\n  line two"},
			want: "'line one line two'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Render(tt.tmpl, tt.data)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCheck(t *testing.T) {
	assert.NoError(t, Check("echo {{ .Text | shq }}"))
	assert.Error(t, Check("echo {{ .Text | nope }}"))
	assert.Error(t, Check("{{ .Text"))
}
