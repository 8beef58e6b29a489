package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/google/uuid"
)

// LambdaClient defines the interface for Lambda operations
type LambdaClient interface {
	Invoke(ctx context.Context, params *lambda.InvokeInput, optFns ...func(*lambda.Options)) (*lambda.InvokeOutput, error)
}

// LambdaTransport invokes a JMAP API function directly with an API Gateway
// proxy event, for callers inside the same AWS account
type LambdaTransport struct {
	client       LambdaClient
	functionName string
	accountID    string
}

// NewLambdaTransport creates a transport that sends requests for accountID to
// the named function
func NewLambdaTransport(client LambdaClient, functionName, accountID string) *LambdaTransport {
	return &LambdaTransport{client: client, functionName: functionName, accountID: accountID}
}

// Exchange implements Transport
func (t *LambdaTransport) Exchange(ctx context.Context, request []byte) ([]byte, error) {
	event := events.APIGatewayProxyRequest{
		HTTPMethod:     http.MethodPost,
		Path:           "/jmap-iam/" + t.accountID,
		PathParameters: map[string]string{"accountId": t.accountID},
		Headers:        map[string]string{"Content-Type": "application/json"},
		Body:           string(request),
		RequestContext: events.APIGatewayProxyRequestContext{
			RequestID: uuid.New().String(),
		},
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, &Error{Kind: Fatal, Err: fmt.Errorf("failed to marshal request: %w", err)}
	}

	output, err := t.client.Invoke(ctx, &lambda.InvokeInput{
		FunctionName: aws.String(t.functionName),
		Payload:      payload,
	})
	if err != nil {
		return nil, &Error{Kind: Transient, Err: fmt.Errorf("lambda invocation failed: %w", err)}
	}
	if output.FunctionError != nil {
		return nil, &Error{Kind: Fatal, Err: fmt.Errorf("function error: %s: %s", aws.ToString(output.FunctionError), output.Payload)}
	}

	var response events.APIGatewayProxyResponse
	if err := json.Unmarshal(output.Payload, &response); err != nil {
		return nil, &Error{Kind: Fatal, Err: fmt.Errorf("failed to unmarshal response: %w", err)}
	}
	if response.StatusCode != http.StatusOK {
		return nil, statusError(response.StatusCode, []byte(response.Body))
	}
	return []byte(response.Body), nil
}
