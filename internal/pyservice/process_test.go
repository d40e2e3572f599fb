package pyservice

import (
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// oneShot answers a single frame and exits, like a helper that crashes after its first
// response.
const oneShot = `set -- $(dd bs=1 count=4 2>/dev/null | od -An -tu1)
dd bs=1 count=$(( ($1 << 24) + ($2 << 16) + ($3 << 8) + $4 )) of=/dev/null 2>/dev/null
echo '{"ok":true}'
`

func requireShell(t *testing.T) {
	t.Helper()
	for _, tool := range []string{"sh", "dd", "od"} {
		if _, err := exec.LookPath(tool); err != nil {
			t.Skipf("%s not available", tool)
		}
	}
}

func exchange(p *Process, payload []byte) ([]byte, error) {
	if err := p.Start(); err != nil {
		return nil, err
	}
	if err := p.WriteFrame(nil, payload); err != nil {
		return nil, err
	}
	return p.ReadLine()
}

func TestProcess_RestartsAfterExit(t *testing.T) {
	requireShell(t)
	p := NewCommand("sh", []string{"-c", oneShot}, zaptest.NewLogger(t))
	defer p.Stop()

	line, err := exchange(p, []byte("frame"))
	require.NoError(t, err)
	assert.Equal(t, "{\"ok\":true}\n", string(line))

	// The helper is gone; the exchange fails and the process is forgotten.
	_, err = exchange(p, []byte("frame"))
	require.Error(t, err)
	assert.False(t, p.Started())

	line, err = exchange(p, []byte("another frame"))
	require.NoError(t, err)
	assert.Equal(t, "{\"ok\":true}\n", string(line))
}

func TestProcess_ReadTimeout(t *testing.T) {
	requireShell(t)
	p := NewCommand("sh", []string{"-c", "exec sleep 30"}, zaptest.NewLogger(t))
	p.SetReadTimeout(50 * time.Millisecond)
	defer p.Stop()

	require.NoError(t, p.Start())
	require.NoError(t, p.WriteFrame(nil, []byte("frame")))

	start := time.Now()
	_, err := p.ReadLine()
	assert.ErrorIs(t, err, ErrReadTimeout)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.False(t, p.Started())
}

func TestProcess_KillUnblocksRead(t *testing.T) {
	requireShell(t)
	p := NewCommand("sh", []string{"-c", "exec sleep 30"}, zaptest.NewLogger(t))
	defer p.Stop()

	require.NoError(t, p.Start())
	time.AfterFunc(50*time.Millisecond, p.Kill)

	_, err := p.ReadLine()
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrReadTimeout)
	assert.False(t, p.Started())
}

func TestProcess_NotStarted(t *testing.T) {
	p := NewCommand("sh", nil, zaptest.NewLogger(t))
	assert.ErrorIs(t, p.WriteFrame(nil, []byte("x")), ErrNotStarted)
	_, err := p.ReadLine()
	assert.ErrorIs(t, err, ErrNotStarted)
	assert.NoError(t, p.Stop())
	p.Kill()
}
