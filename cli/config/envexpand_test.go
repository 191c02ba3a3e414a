package config

import "testing"

func TestExpandEnv(t *testing.T) {
	t.Setenv("WARDEN_TEST_SET", "hello")
	t.Setenv("WARDEN_TEST_EMPTY", "")

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"set var", "value: ${WARDEN_TEST_SET}", "value: hello"},
		{"unset var", "value: ${WARDEN_TEST_UNSET_12345}", "value: "},
		{"default used when unset", "${WARDEN_TEST_UNSET_12345:-fallback}", "fallback"},
		{"default ignored when set", "${WARDEN_TEST_SET:-fallback}", "hello"},
		{"default used when empty", "${WARDEN_TEST_EMPTY:-fallback}", "fallback"},
		{"multiple vars", "${WARDEN_TEST_SET}:${WARDEN_TEST_SET}", "hello:hello"},
		{"no vars", "no variables here", "no variables here"},
		{"bare dollar untouched", "price: $5 and $WARDEN_TEST_SET", "price: $5 and $WARDEN_TEST_SET"},
		{"invalid name untouched", "glob: ${not-a-var} and ${1BAD}", "glob: ${not-a-var} and ${1BAD}"},
		{"unclosed brace untouched", "broken: ${WARDEN_TEST_SET", "broken: ${WARDEN_TEST_SET"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExpandEnv(tt.input); got != tt.want {
				t.Errorf("ExpandEnv(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestExpandEnv_NestedInYAML(t *testing.T) {
	t.Setenv("HOOK_URL", "https://hooks.example.com/warden")
	t.Setenv("HOOK_TOKEN", "secret")

	input := `adapter:
  type: webhook
  url: ${HOOK_URL}
  headers:
    Authorization: Bearer ${HOOK_TOKEN}`

	want := `adapter:
  type: webhook
  url: https://hooks.example.com/warden
  headers:
    Authorization: Bearer secret`

	if got := ExpandEnv(input); got != want {
		t.Errorf("got:\n%s\nwant:\n%s", got, want)
	}
}
