package temporal

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const (
	ActivityPolicyRegisterAttachment = "register_attachment"
	ActivityPolicyQueueApproval      = "queue_approval"
	ActivityPolicyResolveApproval    = "resolve_approval"
	ActivityPolicyValidateTransition = "validate_transition"
	ActivityPolicyAdvanceStage       = "advance_stage"
)

type activityPolicy struct {
	StartToCloseTimeout time.Duration
	RetryPolicy         temporal.RetryPolicy
}

var storeRetry = temporal.RetryPolicy{
	InitialInterval:    1 * time.Second,
	BackoffCoefficient: 2,
	MaximumInterval:    10 * time.Second,
	MaximumAttempts:    3,
}

var activityPolicies = map[string]activityPolicy{
	ActivityPolicyRegisterAttachment: {
		StartToCloseTimeout: 1 * time.Minute,
		RetryPolicy: temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    5,
		},
	},
	ActivityPolicyQueueApproval: {
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy:         storeRetry,
	},
	ActivityPolicyResolveApproval: {
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy:         storeRetry,
	},
	ActivityPolicyValidateTransition: {
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy:         storeRetry,
	},
	ActivityPolicyAdvanceStage: {
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy:         storeRetry,
	},
}

func ActivityOptionsFor(policyName string) (workflow.ActivityOptions, error) {
	policy, ok := activityPolicies[policyName]
	if !ok {
		return workflow.ActivityOptions{}, fmt.Errorf("unknown activity policy: %s", policyName)
	}

	retry := policy.RetryPolicy
	return workflow.ActivityOptions{
		StartToCloseTimeout: policy.StartToCloseTimeout,
		RetryPolicy:         &retry,
	}, nil
}

func mustActivityContext(ctx workflow.Context, policyName string) workflow.Context {
	ao, err := ActivityOptionsFor(policyName)
	if err != nil {
		panic(err)
	}
	return workflow.WithActivityOptions(ctx, ao)
}
