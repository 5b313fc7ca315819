// Package cloud builds the shared AWS session used by the DynamoDB persister
// and the SNS/SES delivery adapters.
package cloud

import (
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"

	"github.com/nerrad567/gray-logic-telemetry/internal/infrastructure/config"
)

// ErrNoRegion is returned when no AWS region is configured.
var ErrNoRegion = errors.New("cloud: aws region is required")

// NewSession creates an AWS session from the aws config section.
//
// Credentials come from the SDK default chain. A non-empty Endpoint points
// every client at a local emulator such as LocalStack.
//
// Parameters:
//   - cfg: AWS configuration section
//
// Returns:
//   - *session.Session: Session shared by all AWS clients
//   - error: If the region is missing or the session cannot be built
func NewSession(cfg config.AWSConfig) (*session.Session, error) {
	if cfg.Region == "" {
		return nil, ErrNoRegion
	}

	awsCfg := &aws.Config{Region: aws.String(cfg.Region)}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("creating aws session: %w", err)
	}
	return sess, nil
}

// Enabled reports whether any AWS-backed adapter is switched on.
func Enabled(cfg config.AWSConfig) bool {
	return cfg.DynamoDB.Enabled || cfg.SNS.Enabled || cfg.SES.Enabled
}
