package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"

	"github.com/andrescamacho/takaro-connector/internal/domain/execution"
	"github.com/andrescamacho/takaro-connector/internal/domain/shared"
)

// LambdaAPI is the subset of the Lambda client the runner calls
type LambdaAPI interface {
	Invoke(ctx context.Context, params *lambda.InvokeInput, optFns ...func(*lambda.Options)) (*lambda.InvokeOutput, error)
	CreateFunction(ctx context.Context, params *lambda.CreateFunctionInput, optFns ...func(*lambda.Options)) (*lambda.CreateFunctionOutput, error)
}

type LambdaOptions struct {
	FunctionPrefix string
	RoleARN        string
	Runtime        string
	Handler        string
	MemoryMB       int32
	Timeout        time.Duration
	CodeBucket     string
	CodeKey        string
	BaseURL        string
}

// LambdaRunner executes each domain's functions in a Lambda function named
// after the domain. Missing functions are provisioned on first use.
type LambdaRunner struct {
	client LambdaAPI
	opts   LambdaOptions
	logger *slog.Logger
}

func NewLambdaRunner(client LambdaAPI, opts LambdaOptions, logger *slog.Logger) *LambdaRunner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &LambdaRunner{client: client, opts: opts, logger: logger}
}

func (r *LambdaRunner) FunctionName(domainID string) string {
	return r.opts.FunctionPrefix + domainID
}

type lambdaPayload struct {
	Code  string         `json:"code"`
	Data  map[string]any `json:"data"`
	Token string         `json:"token"`
	URL   string         `json:"url"`
}

// Run invokes the domain function, provisioning it and retrying exactly once
// when it does not exist. Every other failure yields an empty unsuccessful
// result.
func (r *LambdaRunner) Run(ctx context.Context, inv Invocation) (*execution.Result, error) {
	url := inv.BaseURL
	if url == "" {
		url = r.opts.BaseURL
	}
	payload, err := json.Marshal(lambdaPayload{Code: inv.Code, Data: inv.Data, Token: inv.Token, URL: url})
	if err != nil {
		return nil, fmt.Errorf("failed to encode lambda payload: %w", err)
	}

	name := r.FunctionName(inv.DomainID)
	logger := r.logger.With("function", name, "function_id", inv.FunctionID)

	res, err := r.invoke(ctx, name, payload)
	var notFound *types.ResourceNotFoundException
	if errors.As(err, &notFound) {
		if perr := r.provision(ctx, name); perr != nil {
			logger.Warn("lambda provisioning failed", "error", shared.NewNotProvisionedError(name, perr))
			return emptyFailure(), nil
		}
		res, err = r.invoke(ctx, name, payload)
	}
	if err != nil {
		logger.Warn("lambda invocation failed", "error", err)
		return emptyFailure(), nil
	}
	return res, nil
}

func emptyFailure() *execution.Result {
	return &execution.Result{Logs: []execution.LogLine{}, Success: false}
}

func (r *LambdaRunner) invoke(ctx context.Context, name string, payload []byte) (*execution.Result, error) {
	out, err := r.client.Invoke(ctx, &lambda.InvokeInput{
		FunctionName: aws.String(name),
		Payload:      payload,
	})
	if err != nil {
		return nil, err
	}
	if out.FunctionError != nil {
		return nil, fmt.Errorf("function error %s: %s", aws.ToString(out.FunctionError), out.Payload)
	}

	var res execution.Result
	if err := json.Unmarshal(out.Payload, &res); err != nil {
		return nil, fmt.Errorf("failed to decode lambda result: %w", err)
	}
	if res.Logs == nil {
		res.Logs = []execution.LogLine{}
	}
	return &res, nil
}

func (r *LambdaRunner) provision(ctx context.Context, name string) error {
	r.logger.Info("provisioning lambda function", "function", name)
	input := &lambda.CreateFunctionInput{
		FunctionName: aws.String(name),
		Role:         aws.String(r.opts.RoleARN),
		Runtime:      types.Runtime(r.opts.Runtime),
		Handler:      aws.String(r.opts.Handler),
		Code: &types.FunctionCode{
			S3Bucket: aws.String(r.opts.CodeBucket),
			S3Key:    aws.String(r.opts.CodeKey),
		},
	}
	if r.opts.MemoryMB > 0 {
		input.MemorySize = aws.Int32(r.opts.MemoryMB)
	}
	if secs := int32(r.opts.Timeout / time.Second); secs > 0 {
		input.Timeout = aws.Int32(secs)
	}
	_, err := r.client.CreateFunction(ctx, input)
	var conflict *types.ResourceConflictException
	if errors.As(err, &conflict) {
		// created concurrently by another worker
		return nil
	}
	return err
}
