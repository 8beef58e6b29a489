package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	lambdasvc "github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/jarrod-lowe/jmap-client-core/internal/batch"
	"github.com/jarrod-lowe/jmap-client-core/internal/client"
	"github.com/jarrod-lowe/jmap-client-core/internal/db"
	"github.com/jarrod-lowe/jmap-client-core/internal/schema"
	"github.com/jarrod-lowe/jmap-client-core/internal/statesync"
	"github.com/jarrod-lowe/jmap-client-core/internal/transport"
	"github.com/jarrod-lowe/jmap-client-core/pkg/jmap"
	"github.com/jarrod-lowe/jmap-client-core/pkg/syncevents"
	"github.com/jarrod-lowe/jmap-service-libs/awsinit"
	"github.com/jarrod-lowe/jmap-service-libs/logging"
	"github.com/jarrod-lowe/jmap-service-libs/tracing"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

var logger = logging.New()

// StateDB stores state tokens and the cached object index
type StateDB interface {
	statesync.TokenStore
	ApplyFunc(accountID string, entity schema.EntityName) statesync.ApplyFunc
	ResetEntity(ctx context.Context, accountID string, entity schema.EntityName) error
}

// EventPublisher publishes sync events
type EventPublisher interface {
	Publish(ctx context.Context, payload syncevents.EventPayload) error
}

// MetricsPublisher publishes metrics to CloudWatch
type MetricsPublisher interface {
	PublishMetric(ctx context.Context, name string, value float64) error
}

// CallerFactory returns a JMAP caller acting on an account
type CallerFactory func(accountID string) statesync.Caller

// Config holds application configuration
type Config struct {
	Entities    []schema.EntityName
	MaxRounds   int
	Concurrency int
	MaxChanges  int
}

// Dependencies for handler (injectable for testing)
type Dependencies struct {
	DB      StateDB
	Callers CallerFactory
	Events  EventPublisher
	Metrics MetricsPublisher
	Locks   *statesync.KeyedMutex
	Config  Config
}

var deps *Dependencies

// handler processes sync requests from SQS. Failed records are reported
// individually so only they are redelivered.
func handler(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	ctx, span := tracing.StartHandlerSpan(ctx, "MailSyncHandler",
		tracing.Function("mail-sync"),
	)
	defer span.End()
	span.SetAttributes(attribute.Int("sqs.record_count", len(event.Records)))

	var mu sync.Mutex
	var failures []events.SQSBatchItemFailure

	var g errgroup.Group
	g.SetLimit(max(deps.Config.Concurrency, 1))
	for _, record := range event.Records {
		g.Go(func() error {
			if err := processRecord(ctx, record); err != nil {
				logger.ErrorContext(ctx, "Failed to process sync request",
					slog.String("message_id", record.MessageId),
					slog.String("error", err.Error()),
				)
				mu.Lock()
				failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return events.SQSEventResponse{BatchItemFailures: failures}, nil
}

func processRecord(ctx context.Context, record events.SQSMessage) error {
	var payload syncevents.EventPayload
	if err := json.Unmarshal([]byte(record.Body), &payload); err != nil {
		// Redelivery cannot fix a malformed message
		logger.WarnContext(ctx, "Dropping malformed message",
			slog.String("message_id", record.MessageId),
			slog.String("error", err.Error()),
		)
		return nil
	}
	if payload.AccountID == "" {
		logger.WarnContext(ctx, "Dropping message without account",
			slog.String("message_id", record.MessageId),
			slog.String("event_type", payload.EventType),
		)
		return nil
	}

	switch payload.EventType {
	case syncevents.EventAccountCreated, syncevents.EventSyncRequested:
	default:
		logger.InfoContext(ctx, "Ignoring event",
			slog.String("event_type", payload.EventType),
			slog.String("account_id", payload.AccountID),
		)
		return nil
	}

	entities := deps.Config.Entities
	if requested := payload.Entities(); len(requested) > 0 {
		entities = make([]schema.EntityName, len(requested))
		for i, e := range requested {
			entities[i] = schema.EntityName(e)
		}
	}

	caller := deps.Callers(payload.AccountID)
	var errs []error
	for _, entity := range entities {
		if err := syncEntity(ctx, caller, payload.AccountID, entity); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", entity, err))
		}
	}
	return errors.Join(errs...)
}

// syncEntity runs one incremental sync and reports its outcome
func syncEntity(ctx context.Context, caller statesync.Caller, accountID string, entity schema.EntityName) error {
	syncer := statesync.New(caller,
		statesync.WithTokenStore(deps.DB),
		statesync.WithLocks(deps.Locks),
		statesync.WithLogger(logger),
	)
	key := statesync.Key{AccountID: accountID, Entity: entity}

	delta, err := syncer.SyncChanges(ctx, key, statesync.ChangesOptions{
		MaxChanges:    deps.Config.MaxChanges,
		MaxIterations: deps.Config.MaxRounds,
		Apply:         deps.DB.ApplyFunc(accountID, entity),
	})

	var iterErr *statesync.TooManyIterationsError
	switch {
	case errors.Is(err, statesync.ErrCannotCalculateChanges):
		return requireResync(ctx, accountID, entity)
	case errors.As(err, &iterErr):
		// Progress is checkpointed; continue in a fresh invocation
		logger.InfoContext(ctx, "Sync round limit reached, requeueing",
			slog.String("account_id", accountID),
			slog.String("entity", string(entity)),
			slog.String("state", iterErr.State),
		)
		publishChanged(ctx, accountID, entity, delta)
		return deps.Events.Publish(ctx, syncevents.EventPayload{
			EventType:  syncevents.EventSyncRequested,
			OccurredAt: time.Now().UTC().Format(time.RFC3339),
			AccountID:  accountID,
			Data:       map[string]any{"entities": []any{string(entity)}},
		})
	case errors.Is(err, statesync.ErrStateConflict):
		// Another worker advanced the token and owns the remaining changes
		logger.InfoContext(ctx, "State advanced by another worker",
			slog.String("account_id", accountID),
			slog.String("entity", string(entity)),
		)
		return nil
	case err != nil:
		return err
	}

	if delta.Baseline {
		logger.InfoContext(ctx, "Account baseline stored",
			slog.String("account_id", accountID),
			slog.String("entity", string(entity)),
			slog.String("state", delta.NewState),
		)
		return nil
	}
	publishChanged(ctx, accountID, entity, delta)
	return nil
}

func requireResync(ctx context.Context, accountID string, entity schema.EntityName) error {
	logger.WarnContext(ctx, "State too old, resync required",
		slog.String("account_id", accountID),
		slog.String("entity", string(entity)),
	)
	if err := deps.DB.ResetEntity(ctx, accountID, entity); err != nil {
		return fmt.Errorf("failed to reset cache: %w", err)
	}
	if err := deps.Metrics.PublishMetric(ctx, "ResyncRequired", 1); err != nil {
		logger.WarnContext(ctx, "Failed to publish metric",
			slog.String("error", err.Error()),
		)
	}
	return deps.Events.Publish(ctx, syncevents.NewResyncRequired(accountID, string(entity), string(jmap.ErrorCannotCalculateChanges), time.Now()))
}

func publishChanged(ctx context.Context, accountID string, entity schema.EntityName, delta *statesync.ChangeDelta) {
	if delta == nil || delta.Empty() {
		return
	}
	changed := len(delta.Created) + len(delta.Updated) + len(delta.Destroyed)
	if err := deps.Metrics.PublishMetric(ctx, "ObjectsChanged", float64(changed)); err != nil {
		logger.WarnContext(ctx, "Failed to publish metric",
			slog.String("error", err.Error()),
		)
	}

	event := syncevents.NewChanged(accountID, string(entity), delta.OldState, delta.NewState,
		len(delta.Created), len(delta.Updated), len(delta.Destroyed), time.Now())
	if err := deps.Events.Publish(ctx, event); err != nil {
		// The cache is already updated; a missed notification is not fatal
		logger.ErrorContext(ctx, "Failed to publish changed event",
			slog.String("account_id", accountID),
			slog.String("error", err.Error()),
		)
	}
}

// =============================================================================
// Real implementations
// =============================================================================

// SQSClient is the interface for SQS operations
type SQSClient interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSEventPublisher publishes events to an SQS queue
type SQSEventPublisher struct {
	client   SQSClient
	queueURL string
}

// Publish sends the event to the queue
func (p *SQSEventPublisher) Publish(ctx context.Context, payload syncevents.EventPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}
	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("failed to send %s event: %w", payload.EventType, err)
	}
	return nil
}

// CloudWatchClient is the interface for CloudWatch operations
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchMetricsPublisher implements MetricsPublisher using CloudWatch
type CloudWatchMetricsPublisher struct {
	client    CloudWatchClient
	namespace string
}

// PublishMetric publishes a metric to CloudWatch
func (p *CloudWatchMetricsPublisher) PublishMetric(ctx context.Context, name string, value float64) error {
	_, err := p.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(p.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(name),
				Value:      aws.Float64(value),
				Unit:       cwtypes.StandardUnitCount,
			},
		},
	})
	return err
}

// SSMClient is the interface for SSM operations
type SSMClient interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// getParameter retrieves a parameter from SSM
func getParameter(ctx context.Context, client SSMClient, name string) (string, error) {
	result, err := client.GetParameter(ctx, &ssm.GetParameterInput{
		Name: aws.String(name),
	})
	if err != nil {
		return "", err
	}
	if result.Parameter == nil || result.Parameter.Value == nil {
		return "", fmt.Errorf("parameter value is empty")
	}
	return *result.Parameter.Value, nil
}

// lambdaCallers talks to the JMAP API function directly, one transport per
// account since the account is part of the request path
func lambdaCallers(lambdaClient transport.LambdaClient, functionName string) CallerFactory {
	return func(accountID string) statesync.Caller {
		return newCaller(transport.NewLambdaTransport(lambdaClient, functionName, accountID), accountID)
	}
}

// httpCallers shares one HTTP transport across accounts
func httpCallers(t transport.Transport) CallerFactory {
	return func(accountID string) statesync.Caller {
		return newCaller(t, accountID)
	}
}

func newCaller(t transport.Transport, accountID string) *client.Client {
	return client.New(t,
		client.WithAccounts(batch.StaticAccounts{
			jmap.CapabilityMail:       accountID,
			jmap.CapabilitySubmission: accountID,
		}),
		client.WithLogger(logger),
	)
}

// parseEntities reads a comma-separated entity list
func parseEntities(value string) []schema.EntityName {
	var entities []schema.EntityName
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			entities = append(entities, schema.EntityName(part))
		}
	}
	return entities
}

func requireEnv(name string) string {
	value := os.Getenv(name)
	if value == "" {
		logger.Error("FATAL: " + name + " environment variable is required")
		panic(name + " environment variable is required")
	}
	return value
}

func intEnv(name string, fallback int) int {
	value, err := strconv.Atoi(os.Getenv(name))
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func main() {
	ctx := context.Background()

	result, err := awsinit.Init(ctx)
	if err != nil {
		logger.Error("FATAL: Failed to initialize AWS",
			slog.String("error", err.Error()),
		)
		panic(err)
	}
	defer result.Cleanup()

	tableName := requireEnv("DYNAMODB_TABLE")
	eventsQueueURL := requireEnv("EVENTS_QUEUE_URL")
	metricNamespace := requireEnv("METRIC_NAMESPACE")

	entities := parseEntities(os.Getenv("SYNC_ENTITIES"))
	if len(entities) == 0 {
		entities = []schema.EntityName{schema.Mailbox, schema.Email}
	}

	var callers CallerFactory
	if functionName := os.Getenv("JMAP_API_FUNCTION"); functionName != "" {
		callers = lambdaCallers(lambdasvc.NewFromConfig(result.Config), functionName)
	} else {
		urlParameter := requireEnv("JMAP_API_URL_PARAMETER")
		secretARN := requireEnv("JMAP_TOKEN_SECRET_ARN")

		apiURL, err := getParameter(result.Ctx, ssm.NewFromConfig(result.Config), urlParameter)
		if err != nil {
			logger.Error("FATAL: Failed to read JMAP API URL",
				slog.String("parameter", urlParameter),
				slog.String("error", err.Error()),
			)
			panic(err)
		}
		tokens := transport.NewSecretsManagerTokenSource(secretsmanager.NewFromConfig(result.Config), secretARN)
		callers = httpCallers(transport.NewHTTPTransport(apiURL, tokens))
	}

	deps = &Dependencies{
		DB:      db.New(dynamodb.NewFromConfig(result.Config), tableName),
		Callers: callers,
		Events: &SQSEventPublisher{
			client:   sqs.NewFromConfig(result.Config),
			queueURL: eventsQueueURL,
		},
		Metrics: &CloudWatchMetricsPublisher{
			client:    cloudwatch.NewFromConfig(result.Config),
			namespace: metricNamespace,
		},
		Locks: statesync.NewKeyedMutex(),
		Config: Config{
			Entities:    entities,
			MaxRounds:   intEnv("MAX_SYNC_ROUNDS", statesync.DefaultMaxIterations),
			Concurrency: intEnv("SYNC_CONCURRENCY", 4),
			MaxChanges:  intEnv("MAX_CHANGES", 500),
		},
	}

	result.Start(handler)
}
