// Package awsbatch implements the RunEngine against AWS Batch, with results
// fetched from S3 and deployment identifiers resolved from CloudFormation
// stack outputs.
package awsbatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/batch"
	"github.com/aws/aws-sdk-go/service/batch/batchiface"
	"github.com/aws/aws-sdk-go/service/cloudformation"
	"github.com/aws/aws-sdk-go/service/cloudformation/cloudformationiface"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/google/uuid"

	"github.com/cloudomics/omicsdash"
)

// DefaultStatsKey is where the pipeline's merge step publishes the bcftools
// stats output.
const DefaultStatsKey = "results/stats/variants.stats.txt"

// mergeSuffix marks the aggregate merge job among the per-sample tasks.
const mergeSuffix = "-merge"

type Config struct {
	Region    string
	StackName string

	// Bucket, JobQueue and JobDefinition are resolved from the stack
	// outputs when left empty.
	Bucket        string
	JobQueue      string
	JobDefinition string

	StatsKey string
}

type Engine struct {
	cfg   Config
	batch batchiface.BatchAPI
	s3    s3iface.S3API

	mu    sync.Mutex
	runID string
}

// New builds an engine for one deployed stack. Missing stack outputs are
// configuration errors and reported immediately; there is no retry.
func New(ctx context.Context, cfg Config) (*Engine, error) {
	if cfg.Region == "" {
		return nil, errors.New("awsbatch: region is required")
	}
	if cfg.StatsKey == "" {
		cfg.StatsKey = DefaultStatsKey
	}
	sess, err := session.NewSession(&aws.Config{Region: aws.String(cfg.Region)})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}
	e := &Engine{
		cfg:   cfg,
		batch: batch.New(sess),
		s3:    s3.New(sess),
	}
	if e.cfg.Bucket == "" || e.cfg.JobQueue == "" || e.cfg.JobDefinition == "" {
		if err := e.resolveStackOutputs(ctx, cloudformation.New(sess)); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func (e *Engine) resolveStackOutputs(ctx context.Context, cfn cloudformationiface.CloudFormationAPI) error {
	if e.cfg.StackName == "" {
		return errors.New("awsbatch: stack name is required to resolve outputs")
	}
	out, err := cfn.DescribeStacksWithContext(ctx, &cloudformation.DescribeStacksInput{
		StackName: aws.String(e.cfg.StackName),
	})
	if err != nil {
		return fmt.Errorf("failed to describe stack %v: %w", e.cfg.StackName, err)
	}
	if len(out.Stacks) == 0 {
		return fmt.Errorf("stack %v not found", e.cfg.StackName)
	}
	outputs := make(map[string]string)
	for _, o := range out.Stacks[0].Outputs {
		outputs[aws.StringValue(o.OutputKey)] = aws.StringValue(o.OutputValue)
	}
	for _, want := range []struct {
		key  string
		dest *string
	}{
		{"BucketName", &e.cfg.Bucket},
		{"JobQueueName", &e.cfg.JobQueue},
		{"JobDefinitionName", &e.cfg.JobDefinition},
	} {
		if *want.dest != "" {
			continue
		}
		v, ok := outputs[want.key]
		if !ok || v == "" {
			return fmt.Errorf("stack %v is missing required output %v", e.cfg.StackName, want.key)
		}
		*want.dest = v
	}
	slog.Debug("resolved stack outputs",
		"stack", e.cfg.StackName, "bucket", e.cfg.Bucket,
		"queue", e.cfg.JobQueue, "jobDefinition", e.cfg.JobDefinition)
	return nil
}

func (e *Engine) Submit(ctx context.Context) (string, error) {
	name := "omics-demo-" + uuid.NewString()[:8]
	out, err := e.batch.SubmitJobWithContext(ctx, &batch.SubmitJobInput{
		JobName:       aws.String(name),
		JobQueue:      aws.String(e.cfg.JobQueue),
		JobDefinition: aws.String(e.cfg.JobDefinition),
		ContainerOverrides: &batch.ContainerOverrides{
			Environment: []*batch.KeyValuePair{
				{Name: aws.String("BUCKET_NAME"), Value: aws.String(e.cfg.Bucket)},
				{Name: aws.String("REGION"), Value: aws.String(e.cfg.Region)},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to submit job %v to queue %v: %w", name, e.cfg.JobQueue, err)
	}
	id := aws.StringValue(out.JobId)
	e.mu.Lock()
	e.runID = id
	e.mu.Unlock()
	slog.Info("submitted batch job", "jobName", name, "jobID", id)
	return id, nil
}

var activeStatuses = []string{
	batch.JobStatusSubmitted,
	batch.JobStatusPending,
	batch.JobStatusRunnable,
	batch.JobStatusStarting,
}

func (e *Engine) Poll(ctx context.Context) (*omicsdash.RunPoll, error) {
	var poll omicsdash.RunPoll

	for _, status := range activeStatuses {
		jobs, err := e.listJobs(ctx, status)
		if err != nil {
			return nil, err
		}
		poll.Pending += len(jobs)
	}

	running, err := e.listJobs(ctx, batch.JobStatusRunning)
	if err != nil {
		return nil, err
	}
	poll.Running = len(running)

	succeeded, err := e.listJobs(ctx, batch.JobStatusSucceeded)
	if err != nil {
		return nil, err
	}
	for _, j := range succeeded {
		if strings.HasSuffix(aws.StringValue(j.JobName), mergeSuffix) {
			poll.MergeSucceeded = true
			continue
		}
		poll.Succeeded++
	}

	failed, err := e.listJobs(ctx, batch.JobStatusFailed)
	if err != nil {
		return nil, err
	}
	poll.Failed = len(failed)

	return &poll, nil
}

func (e *Engine) listJobs(ctx context.Context, status string) ([]*batch.JobSummary, error) {
	var out []*batch.JobSummary
	err := e.batch.ListJobsPagesWithContext(ctx, &batch.ListJobsInput{
		JobQueue:  aws.String(e.cfg.JobQueue),
		JobStatus: aws.String(status),
	}, func(page *batch.ListJobsOutput, lastPage bool) bool {
		out = append(out, page.JobSummaryList...)
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %v jobs on queue %v: %w", status, e.cfg.JobQueue, err)
	}
	return out, nil
}

// Terminate cancels every job still in flight on the queue. Individual
// terminate failures are logged and skipped: a task that finished between the
// listing and the terminate call is not an error.
func (e *Engine) Terminate(ctx context.Context, reason string) error {
	statuses := append([]string{batch.JobStatusRunning}, activeStatuses...)
	var terminated int
	for _, status := range statuses {
		jobs, err := e.listJobs(ctx, status)
		if err != nil {
			return err
		}
		for _, j := range jobs {
			_, err := e.batch.TerminateJobWithContext(ctx, &batch.TerminateJobInput{
				JobId:  j.JobId,
				Reason: aws.String(reason),
			})
			if err != nil {
				slog.Warn("failed to terminate job",
					"jobID", aws.StringValue(j.JobId), "err", err)
				continue
			}
			terminated++
		}
	}
	slog.Info("terminated outstanding jobs", "count", terminated, "reason", reason)
	return nil
}

func (e *Engine) FetchStats(ctx context.Context) (*omicsdash.VariantStats, error) {
	out, err := e.s3.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(e.cfg.Bucket),
		Key:    aws.String(e.cfg.StatsKey),
	})
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) && aerr.Code() == s3.ErrCodeNoSuchKey {
			return nil, omicsdash.ErrStatsNotReady
		}
		return nil, fmt.Errorf("failed to fetch stats object s3://%v/%v: %w",
			e.cfg.Bucket, e.cfg.StatsKey, err)
	}
	defer out.Body.Close()

	if strings.HasSuffix(e.cfg.StatsKey, ".json") {
		var stats omicsdash.VariantStats
		if err := json.NewDecoder(out.Body).Decode(&stats); err != nil {
			return nil, fmt.Errorf("failed to decode stats JSON: %w", err)
		}
		if err := stats.Validate(); err != nil {
			return nil, err
		}
		return &stats, nil
	}
	return omicsdash.ParseVCFStats(out.Body)
}
