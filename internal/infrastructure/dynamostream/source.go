package dynamostream

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodbstreams"
	streamtypes "github.com/aws/aws-sdk-go-v2/service/dynamodbstreams/types"

	"github.com/Basi6788/romeo-s-emporium/internal/domain/order"
)

const pollInterval = time.Second

// StreamSource delivers the order table's change feed from DynamoDB Streams.
// It implements feed.Source: Changes resolves shard iterators at LATEST and
// polls; the returned channel closes on transport failure and the feed
// client reconnects with a fresh bulk fetch, so events missed between
// iterators are superseded rather than replayed.
type StreamSource struct {
	client    *dynamodbstreams.Client
	streamARN string
}

func NewStreamSource(client *dynamodbstreams.Client, streamARN string) *StreamSource {
	return &StreamSource{client: client, streamARN: streamARN}
}

func (s *StreamSource) Changes(ctx context.Context) (<-chan order.ChangeEvent, error) {
	iterators, err := s.shardIterators(ctx)
	if err != nil {
		return nil, err
	}

	ch := make(chan order.ChangeEvent)
	go func() {
		defer close(ch)
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			next := make(map[string]string, len(iterators))
			for shardID, iterator := range iterators {
				out, err := s.client.GetRecords(ctx, &dynamodbstreams.GetRecordsInput{
					ShardIterator: aws.String(iterator),
				})
				if err != nil {
					if ctx.Err() == nil {
						log.Printf("[DynamoStream] GetRecords failed on shard %s: %v", shardID, err)
					}
					return
				}
				for _, record := range out.Records {
					ev, err := ConvertStreamRecord(record)
					if err != nil {
						log.Printf("[DynamoStream] Skipping record: %v", err)
						continue
					}
					select {
					case ch <- ev:
					case <-ctx.Done():
						return
					}
				}
				if out.NextShardIterator != nil {
					next[shardID] = *out.NextShardIterator
				}
			}
			if len(next) == 0 {
				log.Printf("[DynamoStream] All shards closed")
				return
			}
			iterators = next
		}
	}()
	return ch, nil
}

// shardIterators resolves a LATEST iterator for every open shard.
func (s *StreamSource) shardIterators(ctx context.Context) (map[string]string, error) {
	desc, err := s.client.DescribeStream(ctx, &dynamodbstreams.DescribeStreamInput{
		StreamArn: aws.String(s.streamARN),
	})
	if err != nil {
		return nil, fmt.Errorf("describe stream: %w", err)
	}
	if desc.StreamDescription == nil {
		return nil, fmt.Errorf("stream %s has no description", s.streamARN)
	}

	iterators := make(map[string]string)
	for _, shard := range desc.StreamDescription.Shards {
		out, err := s.client.GetShardIterator(ctx, &dynamodbstreams.GetShardIteratorInput{
			StreamArn:         aws.String(s.streamARN),
			ShardId:           shard.ShardId,
			ShardIteratorType: streamtypes.ShardIteratorTypeLatest,
		})
		if err != nil {
			return nil, fmt.Errorf("shard iterator for %s: %w", aws.ToString(shard.ShardId), err)
		}
		if out.ShardIterator != nil {
			iterators[aws.ToString(shard.ShardId)] = *out.ShardIterator
		}
	}
	if len(iterators) == 0 {
		return nil, fmt.Errorf("stream %s has no open shards", s.streamARN)
	}
	return iterators, nil
}
