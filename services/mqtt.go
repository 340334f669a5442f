package services

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// ConnectMQTT opens an auto-reconnecting broker connection. onConnect runs on
// every (re)connect, which is where subscriptions belong.
func ConnectMQTT(brokerURL, clientID string, onConnect func(mqtt.Client)) (mqtt.Client, error) {
	url := strings.TrimSpace(brokerURL)
	if url == "" {
		return nil, errors.New("mqtt broker url is empty")
	}
	if strings.HasPrefix(url, "mqtt://") {
		url = "tcp://" + strings.TrimPrefix(url, "mqtt://")
	}
	if strings.TrimSpace(clientID) == "" {
		clientID = "leakwatch-" + time.Now().Format("20060102150405")
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(url)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	opts.OnConnect = func(c mqtt.Client) {
		slog.Info("mqtt connected", "broker", url, "client_id", clientID)
		if onConnect != nil {
			onConnect(c)
		}
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		slog.Warn("mqtt connection lost", "error", err)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(15 * time.Second) {
		return nil, errors.New("mqtt connect timed out")
	}
	if err := token.Error(); err != nil {
		return nil, err
	}
	return client, nil
}
