package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"drive-agent-backend/config"
	"drive-agent-backend/service/scan"

	"github.com/apache/rocketmq-client-go/v2"
	c "github.com/apache/rocketmq-client-go/v2/consumer"
	"github.com/apache/rocketmq-client-go/v2/primitive"
	"github.com/apache/rocketmq-client-go/v2/producer"
	"github.com/apache/rocketmq-client-go/v2/rlog"
	"github.com/avast/retry-go/v4"
)

const (
	TopicScan  = "topic_scan"
	TagTrigger = "tag_trigger"
	TagReport  = "tag_report"

	consumeGroupScan = "cg_scan"

	sendMessageAttempts  = 3
	maxReconsumeTimes    = 5
	consumeGoroutineNums = 10
)

var (
	// 全局生产者
	producerInstance rocketmq.Producer

	// 扫描触发消费者
	consumerScan rocketmq.PushConsumer

	// 消息处理器表
	handlers = make(map[string]MessageHandler)
)

type MessageHandler func(context.Context, *primitive.MessageExt) error

type Message struct {
	Topic   string
	Tag     string
	Payload any
}

// TriggerMessage 外部系统投递的扫描触发请求
type TriggerMessage struct {
	Trigger string `json:"trigger"`
}

func Init() error {
	// 设置RocketMQ客户端（使用rlog）的日志级别
	rlog.SetLogLevel("warn")

	var err error
	consumerScan, err = rocketmq.NewPushConsumer(
		c.WithNameServer(config.Cfg.MQ.NameServer),
		c.WithGroupName(consumeGroupScan),
		c.WithConsumerModel(c.Clustering),
		c.WithConsumeFromWhere(c.ConsumeFromLastOffset),
		c.WithMaxReconsumeTimes(maxReconsumeTimes),
		c.WithConsumeGoroutineNums(consumeGoroutineNums),
	)
	if err != nil {
		return fmt.Errorf("failed to create consumer: %v", err)
	}

	producerInstance, err = rocketmq.NewProducer(
		producer.WithNameServer(config.Cfg.MQ.NameServer),
	)
	if err != nil {
		return fmt.Errorf("failed to create producer: %v", err)
	}

	return nil
}

func Run() error {
	// 注册消息处理器
	if err := registerHandler(consumerScan, TopicScan, TagTrigger, HandleTriggerMessage); err != nil {
		return fmt.Errorf("failed to register handler, topic: %s, tag: %s, err: %v", TopicScan, TagTrigger, err)
	}

	if err := producerInstance.Start(); err != nil {
		return fmt.Errorf("failed to start producer: %v", err)
	}

	if err := consumerScan.Start(); err != nil {
		return fmt.Errorf("failed to start consumer: %v", err)
	}
	return nil
}

// HandleTriggerMessage 外部触发与定时触发共用一把互斥锁；
// 已有扫描在运行时丢弃本条消息而不是重投，避免触发风暴
func HandleTriggerMessage(ctx context.Context, msg *primitive.MessageExt) error {
	var trigger TriggerMessage
	if err := json.Unmarshal(msg.Body, &trigger); err != nil {
		return fmt.Errorf("failed to unmarshal message body: %v", err)
	}

	if trigger.Trigger == "" {
		trigger.Trigger = "mq"
	}

	runID, err := scan.OrchestratorInstance.RunAsync(trigger.Trigger)
	if err != nil {
		if errors.Is(err, scan.ErrScanLockHeld) {
			slog.Info("Scan already running, dropping trigger message", "msg_id", msg.MsgId)
			return nil
		}
		return fmt.Errorf("failed to start scan: %v", err)
	}

	slog.Info("Scan triggered by message", "msg_id", msg.MsgId, "run_id", runID)
	return nil
}

// PublishReport 将扫描报告投递给下游订阅方
func PublishReport(ctx context.Context, report *scan.Report) error {
	return SendMessage(ctx, &Message{
		Topic:   TopicScan,
		Tag:     TagReport,
		Payload: report,
	})
}

// registerHandler 注册消息处理器
func registerHandler(consumer rocketmq.PushConsumer, topic string, tag string, handler MessageHandler) error {
	handlers[topic] = handler

	selector := c.MessageSelector{}
	if tag != "" {
		selector = c.MessageSelector{
			Type:       c.TAG,
			Expression: tag,
		}
	}

	err := consumer.Subscribe(topic, selector, func(ctx context.Context, messages ...*primitive.MessageExt) (c.ConsumeResult, error) {
		for _, msg := range messages {
			h := handlers[msg.Topic]
			if h == nil {
				slog.Warn("No message handler found for topic", "topic", msg.Topic)
				continue
			}

			if err := h(ctx, msg); err != nil {
				slog.Error("Failed to process message",
					"topic", msg.Topic,
					"msg_id", msg.MsgId,
					"error", err)
				return c.ConsumeRetryLater, err
			}
		}
		return c.ConsumeSuccess, nil
	})

	if err != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %v", topic, err)
	}

	return nil
}

// SendMessage 向MQ发送消息
func SendMessage(ctx context.Context, message *Message) error {
	payloadJSON, err := json.Marshal(message.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %v", err)
	}

	msg := primitive.NewMessage(message.Topic, payloadJSON)
	if message.Tag != "" {
		msg = msg.WithTag(message.Tag)
	}

	err = retry.Do(
		func() error {
			_, err := producerInstance.SendSync(ctx, msg)
			return err
		},
		retry.Attempts(sendMessageAttempts),
		retry.DelayType(retry.BackOffDelay),
		retry.OnRetry(func(n uint, err error) {
			slog.Warn("Retrying to send message",
				"attempt", n+1,
				"topic", msg.Topic,
				"err", err)
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to send message to topic %s after retries: %v", msg.Topic, err)
	}

	return nil
}

// Shutdown 关闭MQ服务
func Shutdown() {
	if producerInstance != nil {
		producerInstance.Shutdown()
	}
	if consumerScan != nil {
		consumerScan.Shutdown()
	}
}
