package publishers

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/leadscout-hq/leadscout/internal/domain"
)

type fakeSQSClient struct {
	input *sqs.SendMessageInput
	err   error
}

func (f *fakeSQSClient) SendMessage(_ context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &sqs.SendMessageOutput{MessageId: aws.String("msg-123")}, nil
}

func TestSQSPublisherSendSuccess(t *testing.T) {
	client := &fakeSQSClient{}
	pub := &sqsPublisher{
		id:       "sqs-1",
		typ:      TypeSQS,
		queueURL: "https://example.com/queue",
		client:   client,
		log:      noopLogger{},
	}

	evt := NewScrapeRunEvent(domain.ScrapeRun{
		ID:        "run-1",
		ChannelID: "ch-golang",
		Platform:  "slack",
		Outcome:   domain.RunSuccess,
	})
	if err := pub.Publish(context.Background(), evt); err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}
	if client.input == nil {
		t.Fatalf("client was not called")
	}
	if got := aws.ToString(client.input.QueueUrl); got != "https://example.com/queue" {
		t.Fatalf("QueueUrl = %s", got)
	}

	attr, ok := client.input.MessageAttributes["channel_id"]
	if !ok || attr.StringValue == nil || aws.ToString(attr.StringValue) != "ch-golang" {
		t.Fatalf("channel_id attribute missing or wrong: %#v", attr)
	}
	kind, ok := client.input.MessageAttributes["kind"]
	if !ok || kind.StringValue == nil || aws.ToString(kind.StringValue) != KindScrapeRun {
		t.Fatalf("kind attribute missing or wrong: %#v", kind)
	}
	if client.input.MessageBody == nil || !strings.Contains(aws.ToString(client.input.MessageBody), `"channel_id":"ch-golang"`) {
		t.Fatalf("MessageBody missing channel_id: %s", aws.ToString(client.input.MessageBody))
	}
}

func TestSQSPublisherSendError(t *testing.T) {
	client := &fakeSQSClient{err: errors.New("boom")}
	pub := &sqsPublisher{
		id:       "sqs-1",
		typ:      TypeSQS,
		queueURL: "https://example.com/queue",
		client:   client,
		log:      noopLogger{},
	}

	evt := NewTickSkippedEvent("slack", "ch-golang", time.Now().UTC())
	if err := pub.Publish(context.Background(), evt); err == nil {
		t.Fatalf("expected error from Publish")
	}
}
