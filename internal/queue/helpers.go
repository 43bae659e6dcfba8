package queue

import (
	"context"

	"github.com/cuongbtq/agent-jobs/internal/task"
)

// Domain helpers used by purchase and document hooks. With the queue disabled
// they return "" and nil.

// QueueFraudCheck enqueues a high priority fraud check for a purchase.
// The job belongs to SystemUser so only admins can read the assessment;
// the buyer appears in the payload alone.
func (q *Queue) QueueFraudCheck(ctx context.Context, purchaseID int64, buyerID string) (string, error) {
	return q.Enqueue(ctx, EnqueueRequest{
		Type:     task.TypeFraudCheck,
		Priority: task.PriorityHigh,
		Payload:  map[string]any{"purchaseId": purchaseID, "userId": buyerID},
		UserID:   SystemUser,
	})
}

// QueueInventoryCheck enqueues a stock review for a seller
func (q *Queue) QueueInventoryCheck(ctx context.Context, sellerID string) (string, error) {
	return q.Enqueue(ctx, EnqueueRequest{
		Type:     task.TypeInventoryCheck,
		Priority: task.PriorityMedium,
		Payload:  map[string]string{"sellerId": sellerID},
		UserID:   sellerID,
	})
}

// QueuePriceOptimization enqueues a price suggestion for a product
func (q *Queue) QueuePriceOptimization(ctx context.Context, productID int64, userID string) (string, error) {
	return q.Enqueue(ctx, EnqueueRequest{
		Type:     task.TypePriceOptimize,
		Priority: task.PriorityLow,
		Payload:  map[string]any{"productId": productID},
		UserID:   userID,
	})
}

// QueueDocumentReview enqueues an AI review of a document instance
func (q *Queue) QueueDocumentReview(ctx context.Context, instanceID int64, userID string) (string, error) {
	return q.Enqueue(ctx, EnqueueRequest{
		Type:     task.TypeReviewDocument,
		Priority: task.PriorityMedium,
		Payload:  map[string]any{"instanceId": instanceID},
		UserID:   userID,
	})
}
