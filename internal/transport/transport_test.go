package transport

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingDeliverer struct {
	channels []string
	texts    []string
}

func (r *recordingDeliverer) Deliver(_ context.Context, channel, text string) error {
	r.channels = append(r.channels, channel)
	r.texts = append(r.texts, text)
	return nil
}

func TestMuxRoutesByPrefix(t *testing.T) {
	tg := &recordingDeliverer{}
	web := &recordingDeliverer{}
	m := NewMux(web, slog.New(slog.DiscardHandler))
	m.Register("tg:", tg)

	require.NoError(t, m.Deliver(context.Background(), "tg:12345", "question one"))
	require.NoError(t, m.Deliver(context.Background(), "discord:999", "question two"))

	assert.Equal(t, []string{"tg:12345"}, tg.channels)
	assert.Equal(t, []string{"discord:999"}, web.channels)
}

func TestMuxLongestPrefixWins(t *testing.T) {
	broad := &recordingDeliverer{}
	narrow := &recordingDeliverer{}
	m := NewMux(nil, slog.New(slog.DiscardHandler))
	m.Register("tg:", broad)
	m.Register("tg:group:", narrow)

	require.NoError(t, m.Deliver(context.Background(), "tg:group:777", "hello"))
	require.NoError(t, m.Deliver(context.Background(), "tg:42", "hello"))

	assert.Equal(t, []string{"tg:group:777"}, narrow.channels)
	assert.Equal(t, []string{"tg:42"}, broad.channels)
}

func TestMuxNilFallbackDrops(t *testing.T) {
	m := NewMux(nil, slog.New(slog.DiscardHandler))
	assert.NoError(t, m.Deliver(context.Background(), "unknown:1", "vanishes"))
}

func TestDropLogsAndDiscards(t *testing.T) {
	d := Drop{Logger: slog.New(slog.DiscardHandler)}
	assert.NoError(t, d.Deliver(context.Background(), "tg:1", "anything"))
}
