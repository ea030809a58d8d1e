package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"

	"babybot/pkg/activity"
	"babybot/pkg/config"
	"babybot/pkg/failure"
	"babybot/pkg/persistence"
)

// InvokeAPI is the part of the Lambda client the Client needs.
type InvokeAPI interface {
	Invoke(ctx context.Context, params *lambda.InvokeInput, optFns ...func(*lambda.Options)) (*lambda.InvokeOutput, error)
}

// Client is a persistence.Store that invokes the persistence function.
type Client struct {
	api          InvokeAPI
	functionName string
	timeout      time.Duration
	log          *slog.Logger
}

var _ persistence.Store = (*Client)(nil)

// New loads AWS configuration and returns a Client for cfg.
func New(ctx context.Context, cfg config.LambdaConfig, log *slog.Logger) (*Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return NewWithAPI(lambda.NewFromConfig(awsCfg), cfg, log), nil
}

// NewWithAPI builds a Client over an existing Lambda client.
func NewWithAPI(api InvokeAPI, cfg config.LambdaConfig, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		api:          api,
		functionName: cfg.FunctionName,
		timeout:      time.Duration(cfg.TimeoutSeconds) * time.Second,
		log:          log.With("component", "persistence.remote"),
	}
}

func (c *Client) InsertActivityRecord(ctx context.Context, record activity.Record) (int64, error) {
	result, err := c.invoke(ctx, Request{FuncDB: OpInsertActivityRecord, Record: &record})
	if err != nil {
		return 0, failure.Wrap(failure.PersistenceWriteFailed, err, "insert activity record")
	}
	return result.InsertID, nil
}

func (c *Client) InsertMediaAsset(ctx context.Context, asset activity.MediaAsset) (int64, error) {
	result, err := c.invoke(ctx, Request{FuncDB: OpInsertMediaAsset, Asset: &asset})
	if err != nil {
		return 0, failure.Wrap(failure.PersistenceWriteFailed, err, "insert media asset")
	}
	return result.InsertID, nil
}

func (c *Client) ManagedEntities(ctx context.Context, userID int64) (activity.Access, error) {
	result, err := c.invoke(ctx, Request{FuncDB: OpManagedEntities, UserID: userID})
	if err != nil {
		return activity.Access{}, err
	}
	return activity.AccessFrom(result.Entities), nil
}

func (c *Client) UserIDByPlatformID(ctx context.Context, platform, platformID string) (int64, bool, error) {
	result, err := c.invoke(ctx, Request{FuncDB: OpUserIDByPlatformID, Platform: platform, PlatformID: platformID})
	if err != nil {
		return 0, false, err
	}
	return result.UserID, result.Found, nil
}

func (c *Client) Ping(ctx context.Context) error {
	_, err := c.invoke(ctx, Request{FuncDB: OpPing})
	return err
}

// invoke calls the function synchronously. Transport errors, function errors
// and non-200 responses all fail with failure.UpstreamInvocationFailed.
func (c *Client) invoke(ctx context.Context, req Request) (Result, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req.SentAt = time.Now().UTC()
	payload, err := json.Marshal(req)
	if err != nil {
		return Result{}, fmt.Errorf("encode %s request: %w", req.FuncDB, err)
	}

	out, err := c.api.Invoke(ctx, &lambda.InvokeInput{
		FunctionName:   aws.String(c.functionName),
		InvocationType: types.InvocationTypeRequestResponse,
		Payload:        payload,
	})
	if err != nil {
		return Result{}, failure.Wrap(failure.UpstreamInvocationFailed, err, "invoke "+req.FuncDB)
	}
	if out.FunctionError != nil {
		return Result{}, failure.Newf(failure.UpstreamInvocationFailed, "%s: function error %s: %s", req.FuncDB, aws.ToString(out.FunctionError), out.Payload)
	}

	var resp Response
	if err := json.Unmarshal(out.Payload, &resp); err != nil {
		return Result{}, failure.Wrap(failure.UpstreamInvocationFailed, err, "decode "+req.FuncDB+" response")
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, failure.Newf(failure.UpstreamInvocationFailed, "%s: status %d: %s", req.FuncDB, resp.StatusCode, resp.Error)
	}

	var result Result
	if resp.Body != "" {
		if err := json.Unmarshal([]byte(resp.Body), &result); err != nil {
			return Result{}, failure.Wrap(failure.UpstreamInvocationFailed, err, "decode "+req.FuncDB+" body")
		}
	}

	c.log.Debug("Persistence invoked", "func_db", req.FuncDB, "status", resp.StatusCode)
	return result, nil
}
