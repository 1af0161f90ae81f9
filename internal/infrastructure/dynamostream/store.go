package dynamostream

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/Basi6788/romeo-s-emporium/internal/domain/order"
)

// Store is the DynamoDB flavor of the external order table: bulk reads for
// the feed contract and the direct status write the admin table issues.
type Store struct {
	client    *dynamodb.Client
	tableName string
}

func NewStore(client *dynamodb.Client, tableName string) *Store {
	return &Store{client: client, tableName: tableName}
}

// FetchOrders scans the table and returns all orders created_at descending.
// DynamoDB does not order scans, so the sort happens here.
func (s *Store) FetchOrders(ctx context.Context) ([]order.Order, error) {
	var orders []order.Order
	paginator := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
		TableName: aws.String(s.tableName),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("scan orders: %w", err)
		}
		for _, item := range page.Items {
			o, err := unmarshalItem(item)
			if err != nil {
				log.Printf("[DynamoStream] Skipping scanned item: %v", err)
				continue
			}
			orders = append(orders, o)
		}
	}

	sort.Slice(orders, func(i, j int) bool {
		if !orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].CreatedAt.After(orders[j].CreatedAt)
		}
		return orders[i].ID < orders[j].ID
	})
	return orders, nil
}

// UpdateOrderStatus writes a new status directly to the table, bumping
// updated_at so the stream event wins the cache merge on its way back.
func (s *Store) UpdateOrderStatus(ctx context.Context, orderID string, status order.Status) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]ddbtypes.AttributeValue{
			"id": &ddbtypes.AttributeValueMemberS{Value: orderID},
		},
		UpdateExpression: aws.String("SET #status = :status, updated_at = :updated_at"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":status":     &ddbtypes.AttributeValueMemberS{Value: string(status)},
			":updated_at": &ddbtypes.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
		},
		ConditionExpression: aws.String("attribute_exists(id)"),
	})
	if err != nil {
		return fmt.Errorf("update status for %s: %w", orderID, err)
	}
	return nil
}
