package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/wolfman30/dental-report-ai/internal/intake"
	"github.com/wolfman30/dental-report-ai/pkg/logging"
)

const jobTTL = 24 * time.Hour

// Status is the lifecycle of an extraction job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// ErrJobNotFound indicates the requested job ID does not exist.
var ErrJobNotFound = errors.New("jobs: job not found")

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(context.Context, *dynamodb.UpdateItemInput, ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// JobRecord is the persisted state of one async extraction.
type JobRecord struct {
	JobID        string         `dynamodbav:"jobId" json:"job_id"`
	Status       Status         `dynamodbav:"status" json:"status"`
	FileName     string         `dynamodbav:"fileName" json:"file_name"`
	FileSize     int            `dynamodbav:"fileSize" json:"file_size"`
	BlobKey      string         `dynamodbav:"blobKey" json:"-"`
	NotifyEmail  string         `dynamodbav:"notifyEmail,omitempty" json:"-"`
	Report       *intake.Report `dynamodbav:"report,omitempty" json:"report,omitempty"`
	ErrorMessage string         `dynamodbav:"errorMessage,omitempty" json:"error,omitempty"`
	CreatedAt    string         `dynamodbav:"createdAt" json:"created_at"`
	UpdatedAt    string         `dynamodbav:"updatedAt" json:"updated_at"`
	ExpiresAt    int64          `dynamodbav:"expiresAt,omitempty" json:"-"`
}

// JobRecorder creates and reads jobs.
type JobRecorder interface {
	PutPending(ctx context.Context, job *JobRecord) error
	GetJob(ctx context.Context, jobID string) (*JobRecord, error)
}

// JobUpdater moves jobs to a final state.
type JobUpdater interface {
	MarkCompleted(ctx context.Context, jobID string, report *intake.Report) error
	MarkFailed(ctx context.Context, jobID string, errMsg string) error
}

// JobStore persists job records to DynamoDB.
type JobStore struct {
	client    dynamoAPI
	tableName string
	logger    *logging.Logger
}

var _ JobRecorder = (*JobStore)(nil)
var _ JobUpdater = (*JobStore)(nil)

// NewJobStore builds a store backed by the provided DynamoDB client.
func NewJobStore(client dynamoAPI, tableName string, logger *logging.Logger) *JobStore {
	if client == nil {
		panic("jobs: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("jobs: table name cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &JobStore{client: client, tableName: tableName, logger: logger}
}

// PutPending inserts a new pending job record.
func (s *JobStore) PutPending(ctx context.Context, job *JobRecord) error {
	if job == nil {
		return errors.New("jobs: job cannot be nil")
	}
	stampPending(job, time.Now().UTC())

	item, err := attributevalue.MarshalMap(job)
	if err != nil {
		return fmt.Errorf("jobs: failed to marshal job: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(jobId)"),
	})
	if err != nil {
		return fmt.Errorf("jobs: failed to persist job: %w", err)
	}
	return nil
}

// MarkCompleted stores the report and flips the status.
func (s *JobStore) MarkCompleted(ctx context.Context, jobID string, report *intake.Report) error {
	if jobID == "" {
		return errors.New("jobs: jobID required")
	}
	reportAttr, err := attributevalue.Marshal(storedReport(report))
	if err != nil {
		return fmt.Errorf("jobs: failed to marshal report: %w", err)
	}

	return s.updateJob(ctx, jobID,
		map[string]types.AttributeValue{
			":status":  &types.AttributeValueMemberS{Value: string(StatusCompleted)},
			":report":  reportAttr,
			":error":   &types.AttributeValueMemberS{Value: ""},
			":updated": &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
		},
		map[string]string{
			"#status":  "status",
			"#report":  "report",
			"#error":   "errorMessage",
			"#updated": "updatedAt",
		},
		"SET #status = :status, #report = :report, #error = :error, #updated = :updated",
	)
}

// MarkFailed updates a job to the failed state.
func (s *JobStore) MarkFailed(ctx context.Context, jobID string, errMsg string) error {
	if jobID == "" {
		return errors.New("jobs: jobID required")
	}
	return s.updateJob(ctx, jobID,
		map[string]types.AttributeValue{
			":status":  &types.AttributeValueMemberS{Value: string(StatusFailed)},
			":report":  &types.AttributeValueMemberNULL{Value: true},
			":error":   &types.AttributeValueMemberS{Value: errMsg},
			":updated": &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
		},
		map[string]string{
			"#status":  "status",
			"#report":  "report",
			"#error":   "errorMessage",
			"#updated": "updatedAt",
		},
		"SET #status = :status, #report = :report, #error = :error, #updated = :updated",
	)
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(ctx context.Context, jobID string) (*JobRecord, error) {
	if jobID == "" {
		return nil, errors.New("jobs: jobID required")
	}
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"jobId": &types.AttributeValueMemberS{Value: jobID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("jobs: failed to fetch job: %w", err)
	}
	if out.Item == nil {
		return nil, ErrJobNotFound
	}

	var job JobRecord
	if err := attributevalue.UnmarshalMap(out.Item, &job); err != nil {
		return nil, fmt.Errorf("jobs: failed to decode job: %w", err)
	}
	return &job, nil
}

func (s *JobStore) updateJob(ctx context.Context, jobID string, values map[string]types.AttributeValue, names map[string]string, expression string) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"jobId": &types.AttributeValueMemberS{Value: jobID},
		},
		UpdateExpression:          aws.String(expression),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ConditionExpression:       aws.String("attribute_exists(jobId)"),
	})
	if err != nil {
		return fmt.Errorf("jobs: failed to update job %s: %w", jobID, err)
	}
	return nil
}

func stampPending(job *JobRecord, now time.Time) {
	job.Status = StatusPending
	job.CreatedAt = now.Format(time.RFC3339Nano)
	job.UpdatedAt = job.CreatedAt
	if job.ExpiresAt == 0 {
		job.ExpiresAt = now.Add(jobTTL).Unix()
	}
}

// storedReport drops the per-attempt and raw upstream data, which can exceed
// the item size limit.
func storedReport(report *intake.Report) *intake.Report {
	if report == nil {
		return &intake.Report{}
	}
	cp := *report
	cp.Attempts = nil
	cp.RawResponse = nil
	return &cp
}
