package state

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"

	"github.com/landform-io/landform/internal/ir"
)

var (
	_ Store  = (*S3Store)(nil)
	_ Locker = (*S3Store)(nil)
)

// snapshot is the JSON document the remote store keeps in S3. Records
// key on "kind/name". Serial counts writes; lineage identifies the
// state's whole life so unrelated states are never mixed up.
type snapshot struct {
	Version   int                   `json:"version"`
	Serial    int64                 `json:"serial"`
	Lineage   string                `json:"lineage"`
	Resources map[string]*ir.Record `json:"resources"`
}

// S3Store keeps the record set as one JSON snapshot in S3 with an
// optional DynamoDB lock serializing runs. Commits read-modify-write
// the snapshot; the run lock makes that safe across processes.
type S3Store struct {
	bucket        string
	key           string
	region        string
	dynamoDBTable string
	profile       string

	s3Client *s3.Client
	dbClient *dynamodb.Client
	lockID   string

	mu   sync.Mutex
	snap *snapshot
}

// NewS3Store builds the remote store from config and verifies AWS
// credentials resolve.
func NewS3Store(ctx context.Context, cfg Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 state backend requires a bucket")
	}

	key := cfg.Key
	if key == "" {
		key = "landform/state.json"
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	s := &S3Store{
		bucket:        cfg.Bucket,
		key:           key,
		region:        region,
		dynamoDBTable: cfg.DynamoDBTable,
		profile:       cfg.Profile,
	}

	var opts []func(*awsconfig.LoadOptions) error
	opts = append(opts, awsconfig.WithRegion(s.region))
	if s.profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(s.profile))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config: %w", err)
	}

	s.s3Client = s3.NewFromConfig(awsCfg)
	if s.dynamoDBTable != "" {
		s.dbClient = dynamodb.NewFromConfig(awsCfg)
	}
	return s, nil
}

func (s *S3Store) Close() error { return nil }

// Load fetches the snapshot and returns its records.
func (s *S3Store) Load(ctx context.Context) (map[ir.Key]*ir.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fetchLocked(ctx); err != nil {
		return nil, err
	}

	records := make(map[ir.Key]*ir.Record, len(s.snap.Resources))
	for raw, rec := range s.snap.Resources {
		key, err := ir.ParseKey(raw)
		if err != nil {
			return nil, fmt.Errorf("corrupt record key %q in s3://%s/%s: %w", raw, s.bucket, s.key, err)
		}
		records[key] = rec
	}
	return records, nil
}

// CommitOne upserts one record into the snapshot and writes it back.
func (s *S3Store) CommitOne(ctx context.Context, rec *ir.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fetchLocked(ctx); err != nil {
		return err
	}
	s.snap.Resources[rec.Key().String()] = rec
	return s.pushLocked(ctx)
}

// RemoveOne deletes one record from the snapshot and writes it back.
func (s *S3Store) RemoveOne(ctx context.Context, key ir.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fetchLocked(ctx); err != nil {
		return err
	}
	if _, ok := s.snap.Resources[key.String()]; !ok {
		return nil
	}
	delete(s.snap.Resources, key.String())
	return s.pushLocked(ctx)
}

// fetchLocked loads the snapshot once per run. The DynamoDB run lock
// keeps the cached copy authoritative between commits.
func (s *S3Store) fetchLocked(ctx context.Context) error {
	if s.snap != nil {
		return nil
	}

	result, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			s.snap = &snapshot{
				Version:   1,
				Lineage:   uuid.NewString(),
				Resources: map[string]*ir.Record{},
			}
			return nil
		}
		return fmt.Errorf("failed to read state from s3://%s/%s: %w", s.bucket, s.key, err)
	}
	defer result.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(result.Body); err != nil {
		return fmt.Errorf("failed to read S3 object body: %w", err)
	}

	content, err := DecryptState(buf.Bytes())
	if err != nil {
		return fmt.Errorf("failed to decrypt remote state: %w", err)
	}

	snap := &snapshot{}
	if err := json.Unmarshal(content, snap); err != nil {
		return fmt.Errorf("failed to parse remote state: %w", err)
	}
	if snap.Resources == nil {
		snap.Resources = map[string]*ir.Record{}
	}
	s.snap = snap
	return nil
}

func (s *S3Store) pushLocked(ctx context.Context) error {
	s.snap.Serial++

	content, err := json.MarshalIndent(s.snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	encrypted, err := EncryptState(content)
	if err != nil {
		return fmt.Errorf("failed to encrypt state: %w", err)
	}

	input := &s3.PutObjectInput{
		Bucket:               aws.String(s.bucket),
		Key:                  aws.String(s.key),
		Body:                 bytes.NewReader(encrypted),
		ServerSideEncryption: s3types.ServerSideEncryptionAes256,
	}
	if _, err := s.s3Client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to write state to s3://%s/%s: %w", s.bucket, s.key, err)
	}
	return nil
}

// Lock takes the DynamoDB run lock with a conditional put. Without a
// table configured there is no locking.
func (s *S3Store) Lock(ctx context.Context) error {
	if s.dbClient == nil {
		return nil
	}

	s.lockID = fmt.Sprintf("landform-%d-%s", os.Getpid(), uuid.NewString())

	_, err := s.dbClient.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.dynamoDBTable),
		Item: map[string]dbtypes.AttributeValue{
			"LockID":  &dbtypes.AttributeValueMemberS{Value: s.key},
			"Info":    &dbtypes.AttributeValueMemberS{Value: s.lockID},
			"Created": &dbtypes.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)},
		},
		ConditionExpression: aws.String("attribute_not_exists(LockID)"),
	})
	if err != nil {
		var ccf *dbtypes.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("state is locked by another process. If this is an error, "+
				"manually delete the lock item with LockID=%q from DynamoDB table %q", s.key, s.dynamoDBTable)
		}
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	return nil
}

// Unlock releases the DynamoDB run lock.
func (s *S3Store) Unlock(ctx context.Context) error {
	if s.dbClient == nil {
		return nil
	}

	_, err := s.dbClient.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.dynamoDBTable),
		Key: map[string]dbtypes.AttributeValue{
			"LockID": &dbtypes.AttributeValueMemberS{Value: s.key},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}
