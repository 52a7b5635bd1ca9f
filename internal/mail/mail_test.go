package mail

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"
)

type captureDialer struct {
	sent []*gomail.Message
	err  error
}

func (d *captureDialer) DialAndSend(m ...*gomail.Message) error {
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, m...)
	return nil
}

func TestSendResetCode(t *testing.T) {
	d := &captureDialer{}
	s, err := NewSenderWithDialer(d, "no-reply@cambria.test", "", 15*time.Minute)
	require.NoError(t, err)

	require.NoError(t, s.SendResetCode(context.Background(), "jane@cambria.test", "Jane <script>", "123456"))
	require.Len(t, d.sent, 1)

	msg := d.sent[0]
	assert.Equal(t, []string{"jane@cambria.test"}, msg.GetHeader("To"))
	assert.Equal(t, []string{"Your Cambria Dashboard reset code"}, msg.GetHeader("Subject"))

	var raw bytes.Buffer
	_, err = msg.WriteTo(&raw)
	require.NoError(t, err)
	assert.Contains(t, raw.String(), "123456")
	assert.Contains(t, raw.String(), "15 minutes")
	assert.NotContains(t, raw.String(), "<script>", "names must be escaped in the html part")
}

func TestSendResetCodeWrapsDialerError(t *testing.T) {
	boom := errors.New("connection refused")
	s, err := NewSenderWithDialer(&captureDialer{err: boom}, "no-reply@cambria.test", "Cambria", 0)
	require.NoError(t, err)
	err = s.SendResetCode(context.Background(), "jane@cambria.test", "Jane", "123456")
	assert.ErrorIs(t, err, boom)
}

func TestNewSenderValidation(t *testing.T) {
	_, err := NewSender(Settings{})
	assert.Error(t, err)
	_, err = NewSenderWithDialer(&captureDialer{}, " ", "", 0)
	assert.Error(t, err)
}
