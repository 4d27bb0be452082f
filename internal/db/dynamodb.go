package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/jonboulle/clockwork"

	"github.com/spacesedan/sentiboard/internal/models"
)

const (
	DEFAULT_TABLE_NAME   = "SentimentResults"
	maxBatchWriteSize    = 25
	maxUnprocessedRetry  = 3
	unprocessedBaseDelay = 500 * time.Millisecond
)

// DynamoDBAPI is the subset of the DynamoDB client the repository uses.
type DynamoDBAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

type dynamoRecord struct {
	ID               string             `dynamodbav:"id"`
	Text             string             `dynamodbav:"text"`
	PredictedClass   string             `dynamodbav:"predicted_class"`
	Confidence       float64            `dynamodbav:"confidence"`
	AllProbabilities map[string]float64 `dynamodbav:"all_probabilities"`
	CreatedAt        int64              `dynamodbav:"created_at"`
}

func toRecord(r models.SentimentResult) dynamoRecord {
	probs := make(map[string]float64, len(r.AllProbabilities))
	for class, p := range r.AllProbabilities {
		probs[string(class)] = p
	}
	return dynamoRecord{
		ID:               r.ID,
		Text:             r.Text,
		PredictedClass:   string(r.PredictedClass),
		Confidence:       r.Confidence,
		AllProbabilities: probs,
		CreatedAt:        r.CreatedAt.UnixNano(),
	}
}

func (d dynamoRecord) result() models.SentimentResult {
	probs := make(map[models.SentimentClass]float64, len(d.AllProbabilities))
	for class, p := range d.AllProbabilities {
		probs[models.SentimentClass(class)] = p
	}
	return models.SentimentResult{
		ID:               d.ID,
		Text:             d.Text,
		PredictedClass:   models.SentimentClass(d.PredictedClass),
		Confidence:       d.Confidence,
		AllProbabilities: probs,
		CreatedAt:        time.Unix(0, d.CreatedAt).UTC(),
	}
}

// DynamoDBRepository stores one item per result keyed by id. Stats scan the
// whole table, which suits the small datasets this board shows.
type DynamoDBRepository struct {
	client DynamoDBAPI
	table  string
	clock  clockwork.Clock
	log    *slog.Logger
}

func NewDynamoDBRepository(client DynamoDBAPI, table string, clock clockwork.Clock, logger *slog.Logger) *DynamoDBRepository {
	if table == "" {
		table = DEFAULT_TABLE_NAME
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DynamoDBRepository{client: client, table: table, clock: clock, log: logger}
}

func (r *DynamoDBRepository) Save(ctx context.Context, result models.SentimentResult) (models.SentimentResult, error) {
	stored, err := prepare(result, r.clock)
	if err != nil {
		return models.SentimentResult{}, err
	}
	item, err := attributevalue.MarshalMap(toRecord(stored))
	if err != nil {
		return models.SentimentResult{}, fmt.Errorf("[DynamoDB] failed to marshal result: %w", err)
	}
	if _, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.table),
		Item:      item,
	}); err != nil {
		return models.SentimentResult{}, fmt.Errorf("[DynamoDB] failed to put result: %w", err)
	}
	return stored, nil
}

func (r *DynamoDBRepository) Stats(ctx context.Context) (models.StatsSnapshot, error) {
	records, err := r.scan(ctx, nil)
	if err != nil {
		return models.StatsSnapshot{}, err
	}
	results := make([]models.SentimentResult, 0, len(records))
	for _, rec := range records {
		results = append(results, rec.result())
	}
	return snapshotFrom(results), nil
}

func (r *DynamoDBRepository) scan(ctx context.Context, projection *string) ([]dynamoRecord, error) {
	paginator := dynamodb.NewScanPaginator(r.client, &dynamodb.ScanInput{
		TableName:            aws.String(r.table),
		ProjectionExpression: projection,
	})

	var records []dynamoRecord
	for paginator.HasMorePages() {
		out, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("[DynamoDB] scan failed: %w", err)
		}
		var page []dynamoRecord
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			r.log.Error("[DynamoDB] Unable to unmarshal scan page", slog.String("error", err.Error()))
			return nil, err
		}
		records = append(records, page...)
	}
	return records, nil
}

// Clear deletes every item in chunks of 25, retrying unprocessed deletes
// with exponential backoff.
func (r *DynamoDBRepository) Clear(ctx context.Context) error {
	records, err := r.scan(ctx, aws.String("id"))
	if err != nil {
		return err
	}

	for _, chunk := range chunkRequests(deleteRequests(records), maxBatchWriteSize) {
		if err := ctx.Err(); err != nil {
			r.log.Warn("[DynamoDB] context canceled")
			return err
		}

		out, err := r.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{r.table: chunk},
		})
		if err != nil {
			return fmt.Errorf("[DynamoDB] failed to batch delete results: %w", err)
		}

		backoff := unprocessedBaseDelay
		for retry := 0; len(out.UnprocessedItems) > 0 && retry < maxUnprocessedRetry; retry++ {
			r.log.Warn("[DynamoDB] Retrying unprocessed deletes...",
				slog.Int("attempt", retry+1),
				slog.Int("remaining", len(out.UnprocessedItems[r.table])))

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-r.clock.After(backoff):
			}
			backoff *= 2

			out, err = r.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
				RequestItems: out.UnprocessedItems,
			})
			if err != nil {
				return fmt.Errorf("[DynamoDB] retry error: %w", err)
			}
		}
		if remaining := len(out.UnprocessedItems[r.table]); remaining > 0 {
			return fmt.Errorf("[DynamoDB] %d deletes unprocessed after retries", remaining)
		}
	}

	r.log.Info("[DynamoDB] Cleared results", slog.Int("deleted", len(records)))
	return nil
}

func (r *DynamoDBRepository) Close() error { return nil }

func deleteRequests(records []dynamoRecord) []types.WriteRequest {
	reqs := make([]types.WriteRequest, 0, len(records))
	for _, rec := range records {
		reqs = append(reqs, types.WriteRequest{
			DeleteRequest: &types.DeleteRequest{
				Key: map[string]types.AttributeValue{
					"id": &types.AttributeValueMemberS{Value: rec.ID},
				},
			},
		})
	}
	return reqs
}

func chunkRequests(reqs []types.WriteRequest, size int) [][]types.WriteRequest {
	var chunks [][]types.WriteRequest
	for i := 0; i < len(reqs); i += size {
		end := i + size
		if end > len(reqs) {
			end = len(reqs)
		}
		chunks = append(chunks, reqs[i:end])
	}
	return chunks
}
