package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// SQSAPI is the subset of the SQS client used by SQSSink.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSSink publishes events to an SQS queue for downstream consumers.
type SQSSink struct {
	client   SQSAPI
	queueURL string
}

// NewSQSSink returns nil when client or queueURL is missing.
func NewSQSSink(client SQSAPI, queueURL string) *SQSSink {
	queueURL = strings.TrimSpace(queueURL)
	if client == nil || queueURL == "" {
		return nil
	}
	return &SQSSink{client: client, queueURL: queueURL}
}

func (q *SQSSink) Name() string { return "sqs" }

func (q *SQSSink) Deliver(ctx context.Context, evt Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, err = q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"event_type": {DataType: aws.String("String"), StringValue: aws.String(evt.Type)},
			"channel":    {DataType: aws.String("String"), StringValue: aws.String(evt.Channel)},
		},
	})
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}
