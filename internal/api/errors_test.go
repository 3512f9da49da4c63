package api

import (
	"net/http"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestExtractMessage(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"detail", `{"detail":"Invalid token."}`, "Invalid token."},
		{"non field errors", `{"non_field_errors":["Unable to log in."]}`, "Unable to log in."},
		{"field errors by key", `{"password":["Too short."],"email":["Enter a valid email."]}`, "Enter a valid email."},
		{"empty body", ``, http.StatusText(http.StatusBadRequest)},
		{"plain text", `upstream exploded`, "upstream exploded"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, extractMessage(http.StatusBadRequest, []byte(tc.body)))
		})
	}
}

func TestExtractMessageFieldErrorsAreStable(t *testing.T) {
	body := []byte(`{"username":["Taken."],"email":["Enter a valid email."],"phone":["Required."],"company":["Required too."]}`)
	first := extractMessage(http.StatusBadRequest, body)
	for range 50 {
		assert.Equal(t, first, extractMessage(http.StatusBadRequest, body))
	}
	assert.Equal(t, "Required too.", first)
}

func TestExtractMessageTruncatesOnRuneBoundary(t *testing.T) {
	body := strings.Repeat("a", maxMessageLen-1) + "é and more"
	msg := extractMessage(http.StatusBadGateway, []byte(body))
	assert.True(t, utf8.ValidString(msg))
	assert.Equal(t, strings.Repeat("a", maxMessageLen-1), msg)

	assert.Equal(t, "héllo", truncate("héllo", 10))
	assert.Equal(t, "h", truncate("héllo", 2))
}
