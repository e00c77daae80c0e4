package emailsvc

import (
	"bytes"
	"log"
	"net/mail"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/masomo/lms/core"
	logsvc "github.com/masomo/lms/services/logger"
)

func TestConsoleService(t *testing.T) {
	conf := core.NewTestConfig()
	var out syncBuffer
	svc := NewConsoleService(conf, log.New(&out, "", 0), logsvc.NopLogger{}).(*consoleService)

	msg := &core.EmailMessage{
		To:           []mail.Address{{Name: "Alice", Address: "alice@example.com"}},
		Cc:           []mail.Address{{Address: "boss@example.com"}},
		Subject:      "Password Reset",
		TemplateName: "password_reset",
		TemplateData: struct{ Name, UID, Token string }{Name: "Alice", UID: "dWlk", Token: "tok-123"},
	}
	require.NoError(t, msg.Attach(strings.NewReader("a,b\n1,2\n"), "report.csv", "text/csv"))

	sent, err := svc.sendMessage(msg)
	require.NoError(t, err)
	assert.True(t, sent)

	body := out.String()
	assert.Contains(t, body, "Subject: [Masomo] Password Reset")
	assert.Contains(t, body, `To: "Alice" <alice@example.com>`)
	assert.Contains(t, body, "CC: <boss@example.com>")
	assert.Contains(t, body, "Hello Alice,")
	assert.Contains(t, body, conf.FrontendBaseURL+"/password-reset/dWlk/tok-123")
	assert.Contains(t, body, "filename=report.csv")

	sent, err = svc.sendMessage(&core.EmailMessage{Subject: "nobody", BodyStr: "hi"})
	require.NoError(t, err)
	assert.False(t, sent, "messages without recipients are dropped")

	_, err = svc.sendMessage(&core.EmailMessage{To: msg.To, TemplateName: "nope"})
	assert.Error(t, err)

	// async path
	out.Reset()
	svc.SendMessages(&core.EmailMessage{To: msg.To, Subject: "Async", BodyStr: "hello"})
	assert.Eventually(t, func() bool { return strings.Contains(out.String(), "Subject: [Masomo] Async") }, time.Second, 10*time.Millisecond)
}

func TestConsoleServiceMock(t *testing.T) {
	svc := NewConsoleServiceMock(core.NewTestConfig())
	to := []mail.Address{{Address: "bob@example.com"}}

	svc.SendMessages(
		&core.EmailMessage{To: to, Subject: "One", BodyStr: "1"},
		&core.EmailMessage{Subject: "Dropped", BodyStr: "no recipient"},
		&core.EmailMessage{To: to, Subject: "Two", TemplateName: "report_failed", TemplateData: struct{ Name, Kind, DepartmentName, Error string }{
			Name: "Bob", Kind: "department-roster", DepartmentName: "Physics", Error: "boom",
		}},
	)

	sent := svc.SentMessages()
	require.Len(t, sent, 2)
	assert.Equal(t, "One", sent[0].Subject)
	assert.Equal(t, "1", sent[0].TextContent)
	assert.Contains(t, sent[1].TextContent, `Your "department-roster" report for the Physics department could not be generated.`)

	assert.Panics(t, func() {
		svc.SendMessages(&core.EmailMessage{To: to, TemplateName: "password_reset", TemplateData: struct{ Name string }{"Bob"}})
	})

	svc.Reset()
	assert.Empty(t, svc.SentMessages())
}

// syncBuffer is a bytes.Buffer safe for the concurrent writes of the async service.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *syncBuffer) Reset() {
	b.mu.Lock()
	b.buf.Reset()
	b.mu.Unlock()
}
