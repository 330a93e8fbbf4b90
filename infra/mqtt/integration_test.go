package mqtt_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/enrollmail/core/model"
	coremqtt "github.com/kilianp07/enrollmail/core/mqtt"
	"github.com/kilianp07/enrollmail/infra/logger"
	"github.com/kilianp07/enrollmail/infra/mqtt"
	"github.com/kilianp07/enrollmail/test/util"
)

func TestPublishScheduleWithBroker(t *testing.T) {
	util.RequireDocker(t)
	ctx := context.Background()
	broker, cleanup, err := util.StartMosquitto(ctx)
	if err != nil {
		t.Skipf("mosquitto not available: %v", err)
	}
	defer cleanup()

	got := make(chan coremqtt.Schedule, 1)
	sub := paho.NewClient(paho.NewClientOptions().AddBroker(broker).SetClientID("sender"))
	require.NoError(t, waitToken(sub.Connect()))
	defer sub.Disconnect(100)
	require.NoError(t, waitToken(sub.Subscribe("it/schedules/#", 1, func(_ paho.Client, msg paho.Message) {
		var s coremqtt.Schedule
		if err := json.Unmarshal(msg.Payload(), &s); err == nil {
			got <- s
		}
	})))

	pub, err := mqtt.NewPahoClient(mqtt.Config{Broker: broker, TopicPrefix: "it/schedules", QoS: 1}, logger.NopLogger{}, nil)
	require.NoError(t, err)
	defer pub.Disconnect()

	want := coremqtt.Schedule{
		RunID:         "run-it",
		ContactID:     9,
		ReferenceDate: "2025-01-01",
		Emails: []model.Email{{
			ContactID:   9,
			Type:        model.EmailCarrierUpdate,
			ScheduledAt: model.Date(2025, time.January, 31),
			Reason:      "annual carrier update",
		}},
	}
	require.NoError(t, pub.PublishSchedule(ctx, want))

	select {
	case s := <-got:
		assert.Equal(t, want, s)
	case <-time.After(5 * time.Second):
		t.Fatal("schedule not received")
	}
}

func waitToken(tok paho.Token) error {
	tok.Wait()
	return tok.Error()
}
