package channelsync

import (
	"context"
	"encoding/json"
	"io"
	"strings"

	"cloud.google.com/go/pubsub"
	"github.com/gin-gonic/gin"
	"github.com/otelciro/pms_backend/config"
	"github.com/otelciro/pms_backend/utils"
)

type pubSubPushEnvelope struct {
	Message struct {
		Data      []byte `json:"data"`
		MessageId string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

func syncTopicName() string {
	return utils.EnvOrDefault("CHANNEL_SYNC_TOPIC", "channel-sync")
}

func asyncSyncEnabled() bool {
	return utils.EnvBoolDefault("CHANNEL_SYNC_ASYNC", false)
}

// PublishSyncRequest hands a sync request to the Pub/Sub worker instead
// of running it in the request path.
func PublishSyncRequest(ctx context.Context, req SyncRequest) error {
	client, err := config.GetClient(ctx)
	if err != nil {
		return err
	}

	topicName := syncTopicName()
	topic := client.Topic(topicName)
	if utils.EnvBoolDefault("CHANNEL_SYNC_CREATE_TOPIC", false) {
		topic, err = config.CreateTopicIfNotExists(client, topicName)
		if err != nil {
			return err
		}
	}

	data, _ := json.Marshal(req)
	res := topic.Publish(ctx, &pubsub.Message{Data: data})
	_, err = res.Get(ctx)
	return err
}

// PubSubPushHandler is the push-subscription worker endpoint. Malformed
// envelopes are acked with 204; a redelivery would fail the same way.
func PubSubPushHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !utils.EnvBoolDefault("ENABLE_CHANNEL_SYNC_PUSH_ENDPOINT", true) {
			c.Status(204)
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(204)
			return
		}

		var envelope pubSubPushEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			c.Status(204)
			return
		}

		var req SyncRequest
		if err := json.Unmarshal(envelope.Message.Data, &req); err != nil {
			c.Status(204)
			return
		}
		if strings.TrimSpace(req.SyncType) == "" {
			c.Status(204)
			return
		}

		ctx := c.Request.Context()
		if req.TraceId != "" {
			ctx = utils.SetCorrelationIdInContext(ctx, req.TraceId)
		}
		_, _ = RunSync(ctx, config.GetDB(), req)
		c.Status(204)
	}
}
