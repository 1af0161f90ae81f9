package dynamostream

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	streamtypes "github.com/aws/aws-sdk-go-v2/service/dynamodbstreams/types"

	"github.com/Basi6788/romeo-s-emporium/internal/domain/order"
)

// dynamoOrder is the DynamoDB item shape of one order. Items are stored as a
// JSON string; timestamps as RFC3339Nano strings.
type dynamoOrder struct {
	ID            string `dynamodbav:"id"`
	CustomerName  string `dynamodbav:"customer_name"`
	Email         string `dynamodbav:"email"`
	Phone         string `dynamodbav:"phone"`
	Address       string `dynamodbav:"address"`
	City          string `dynamodbav:"city"`
	PostalCode    string `dynamodbav:"postal_code"`
	Country       string `dynamodbav:"country"`
	Items         string `dynamodbav:"items"`
	SubtotalCents int64  `dynamodbav:"subtotal_cents"`
	ShippingCents int64  `dynamodbav:"shipping_cents"`
	TaxCents      int64  `dynamodbav:"tax_cents"`
	TotalCents    int64  `dynamodbav:"total_cents"`
	Status        string `dynamodbav:"status"`
	CreatedAt     string `dynamodbav:"created_at"`
	UpdatedAt     string `dynamodbav:"updated_at"`
}

func (d dynamoOrder) toOrder() (order.Order, error) {
	o := order.Order{
		ID:            d.ID,
		CustomerName:  d.CustomerName,
		Email:         d.Email,
		Phone:         d.Phone,
		Address:       d.Address,
		City:          d.City,
		PostalCode:    d.PostalCode,
		Country:       d.Country,
		SubtotalCents: d.SubtotalCents,
		ShippingCents: d.ShippingCents,
		TaxCents:      d.TaxCents,
		TotalCents:    d.TotalCents,
		Status:        order.Status(d.Status),
	}
	if d.Items != "" {
		if err := json.Unmarshal([]byte(d.Items), &o.Items); err != nil {
			return order.Order{}, fmt.Errorf("parse items for %s: %w", d.ID, err)
		}
	}
	if d.CreatedAt != "" {
		t, err := time.Parse(time.RFC3339Nano, d.CreatedAt)
		if err != nil {
			return order.Order{}, fmt.Errorf("parse created_at for %s: %w", d.ID, err)
		}
		o.CreatedAt = t
	}
	if d.UpdatedAt != "" {
		t, err := time.Parse(time.RFC3339Nano, d.UpdatedAt)
		if err != nil {
			return order.Order{}, fmt.Errorf("parse updated_at for %s: %w", d.ID, err)
		}
		o.UpdatedAt = t
	}
	return o, nil
}

// ConvertStreamRecord maps one DynamoDB Streams record to a change event:
// INSERT, MODIFY and REMOVE become insert, update and delete. REMOVE carries
// only the old image, so the deleted order's identity comes from there.
func ConvertStreamRecord(record streamtypes.Record) (order.ChangeEvent, error) {
	if record.Dynamodb == nil {
		return order.ChangeEvent{}, fmt.Errorf("stream record has no change payload")
	}

	var kind order.ChangeKind
	var image map[string]streamtypes.AttributeValue
	switch record.EventName {
	case streamtypes.OperationTypeInsert:
		kind = order.ChangeInsert
		image = record.Dynamodb.NewImage
	case streamtypes.OperationTypeModify:
		kind = order.ChangeUpdate
		image = record.Dynamodb.NewImage
	case streamtypes.OperationTypeRemove:
		kind = order.ChangeDelete
		image = record.Dynamodb.OldImage
	default:
		return order.ChangeEvent{}, fmt.Errorf("unknown stream operation %q", record.EventName)
	}
	if image == nil {
		return order.ChangeEvent{}, fmt.Errorf("%s record has no image", record.EventName)
	}

	o, err := unmarshalImage(image)
	if err != nil {
		return order.ChangeEvent{}, err
	}
	return order.ChangeEvent{Kind: kind, Record: o, ReceivedAt: time.Now()}, nil
}

func unmarshalImage(image map[string]streamtypes.AttributeValue) (order.Order, error) {
	converted, err := attributevalue.FromDynamoDBStreamsMap(image)
	if err != nil {
		return order.Order{}, fmt.Errorf("convert stream image: %w", err)
	}
	return unmarshalItem(converted)
}

func unmarshalItem(item map[string]ddbtypes.AttributeValue) (order.Order, error) {
	var d dynamoOrder
	if err := attributevalue.UnmarshalMap(item, &d); err != nil {
		return order.Order{}, fmt.Errorf("unmarshal order item: %w", err)
	}
	return d.toOrder()
}
