package mqttc

import (
	"testing"
	"time"

	"github.com/andresmejia3/vigil/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptions(t *testing.T) {
	opts := Options(config.MQTTConfig{
		Broker:   "tcp://broker.local:1883",
		ClientID: "vigil-test",
		Username: "u",
		Password: "p",
	})

	require.Len(t, opts.Servers, 1)
	assert.Equal(t, "broker.local:1883", opts.Servers[0].Host)
	assert.Equal(t, "vigil-test", opts.ClientID)
	assert.Equal(t, "u", opts.Username)
	assert.Equal(t, "p", opts.Password)
	assert.True(t, opts.AutoReconnect)
	assert.True(t, opts.CleanSession)
}

func TestOptions_Anonymous(t *testing.T) {
	opts := Options(config.MQTTConfig{Broker: "tcp://localhost:1883", ClientID: "c"})
	assert.Empty(t, opts.Username)
	assert.Empty(t, opts.Password)
}

func TestConnect_Unreachable(t *testing.T) {
	if testing.Short() {
		t.Skip("dials the network")
	}
	// port 1 on loopback refuses immediately
	_, err := Connect(config.MQTTConfig{Broker: "tcp://127.0.0.1:1", ClientID: "c"}, 2*time.Second, nil)
	assert.Error(t, err)
}
