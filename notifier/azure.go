package notifier

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
)

// AzureQueue adapts an Azure storage queue to Queue.
type AzureQueue struct {
	client *azqueue.QueueClient
	// VisibilityTimeout in seconds hides a received message from other
	// receivers until it is deleted or the timeout lapses.
	VisibilityTimeout int32
}

func NewAzureQueue(client *azqueue.QueueClient) *AzureQueue {
	return &AzureQueue{client: client, VisibilityTimeout: 60}
}

func (q *AzureQueue) Receive(ctx context.Context, max int32) ([]Message, error) {
	vis := q.VisibilityTimeout
	resp, err := q.client.DequeueMessages(ctx, &azqueue.DequeueMessagesOptions{NumberOfMessages: &max, VisibilityTimeout: &vis})
	if err != nil {
		return nil, err
	}
	out := make([]Message, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		if m == nil || m.MessageID == nil || m.PopReceipt == nil {
			continue
		}
		msg := Message{ID: *m.MessageID, PopReceipt: *m.PopReceipt}
		if m.MessageText != nil {
			msg.Text = *m.MessageText
		}
		if m.DequeueCount != nil {
			msg.Attempts = *m.DequeueCount
		}
		out = append(out, msg)
	}
	return out, nil
}

func (q *AzureQueue) Delete(ctx context.Context, msg Message) error {
	_, err := q.client.DeleteMessage(ctx, msg.ID, msg.PopReceipt, nil)
	return err
}
