// Package awscost binds the cost source interface to AWS Cost Explorer.
package awscost

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer"
	cetypes "github.com/aws/aws-sdk-go-v2/service/costexplorer/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"cloudpulse/internal/costsource"
)

// ErrNoCredentials indicates neither a role ARN nor an access key pair was
// provided for the account.
var ErrNoCredentials = errors.New("awscost: no usable aws credentials")

const (
	metricUnblendedCost = "UnblendedCost"
	assumeRoleDuration  = 15 * time.Minute
)

// Options parameterise the Cost Explorer client.
type Options struct {
	Region  string
	Timeout time.Duration
}

// Client fetches daily per-service costs from AWS Cost Explorer.
type Client struct {
	opts   Options
	logger zerolog.Logger
}

// New constructs a Cost Explorer backed cost source.
func New(opts Options, logger zerolog.Logger) *Client {
	if opts.Region == "" {
		opts.Region = "us-east-1"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Client{
		opts:   opts,
		logger: logger.With().Str("component", "awscost").Logger(),
	}
}

// FetchCostsByService returns daily UnblendedCost grouped by service for the
// half-open date range [startDate, endDate). Zero-amount entries are dropped.
func (c *Client) FetchCostsByService(ctx context.Context, creds costsource.Credentials, startDate, endDate string) ([]costsource.DataPoint, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	client, err := c.buildClient(ctx, creds)
	if err != nil {
		return nil, err
	}

	input := &costexplorer.GetCostAndUsageInput{
		TimePeriod: &cetypes.DateInterval{
			Start: aws.String(startDate),
			End:   aws.String(endDate),
		},
		Granularity: cetypes.GranularityDaily,
		Metrics:     []string{metricUnblendedCost},
		GroupBy: []cetypes.GroupDefinition{
			{Type: cetypes.GroupDefinitionTypeDimension, Key: aws.String("SERVICE")},
		},
	}

	points := make([]costsource.DataPoint, 0)
	for {
		out, err := client.GetCostAndUsage(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("get cost and usage: %w", err)
		}

		for _, result := range out.ResultsByTime {
			periodStart, periodEnd := startDate, endDate
			if result.TimePeriod != nil {
				periodStart = aws.ToString(result.TimePeriod.Start)
				periodEnd = aws.ToString(result.TimePeriod.End)
			}

			for _, group := range result.Groups {
				point, ok, err := groupDataPoint(group, periodStart, periodEnd)
				if err != nil {
					return nil, err
				}
				if ok {
					points = append(points, point)
				}
			}
		}

		if aws.ToString(out.NextPageToken) == "" {
			break
		}
		input.NextPageToken = out.NextPageToken
	}

	c.logger.Debug().
		Str("start", startDate).
		Str("end", endDate).
		Int("points", len(points)).
		Msg("fetched cost data")

	return points, nil
}

func groupDataPoint(group cetypes.Group, periodStart, periodEnd string) (costsource.DataPoint, bool, error) {
	serviceName := "Unknown"
	if len(group.Keys) > 0 {
		serviceName = group.Keys[0]
	}

	metric, ok := group.Metrics[metricUnblendedCost]
	if !ok {
		return costsource.DataPoint{}, false, nil
	}

	amount, err := decimal.NewFromString(aws.ToString(metric.Amount))
	if err != nil {
		return costsource.DataPoint{}, false, fmt.Errorf("parse cost amount for %s: %w", serviceName, err)
	}
	if !amount.IsPositive() {
		return costsource.DataPoint{}, false, nil
	}

	currency := aws.ToString(metric.Unit)
	if currency == "" {
		currency = "USD"
	}

	return costsource.DataPoint{
		ServiceName: serviceName,
		Amount:      amount,
		Currency:    currency,
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
	}, true, nil
}

// buildClient assembles an authenticated Cost Explorer client, assuming the
// configured IAM role when one is present.
func (c *Client) buildClient(ctx context.Context, creds costsource.Credentials) (*costexplorer.Client, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(c.opts.Region),
	}

	hasKeys := creds.AccessKey != nil && *creds.AccessKey != "" &&
		creds.SecretKey != nil && *creds.SecretKey != ""
	if hasKeys {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(*creds.AccessKey, *creds.SecretKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	if creds.RoleArn != nil && *creds.RoleArn != "" {
		stsClient := sts.NewFromConfig(cfg)
		provider := stscreds.NewAssumeRoleProvider(stsClient, *creds.RoleArn, func(o *stscreds.AssumeRoleOptions) {
			o.RoleSessionName = fmt.Sprintf("cloudpulse-%d", time.Now().Unix())
			o.Duration = assumeRoleDuration
		})
		cfg.Credentials = aws.NewCredentialsCache(provider)
		return costexplorer.NewFromConfig(cfg), nil
	}

	if !hasKeys {
		return nil, ErrNoCredentials
	}
	return costexplorer.NewFromConfig(cfg), nil
}

var _ costsource.Source = (*Client)(nil)
