// Package ses implements a transport that delivers messages via AWS SES v2.
package ses

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/shineum/notify-mailer/internal/transport"
)

// Config holds the configuration for creating a Dialer.
type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// SendEmailAPI is the interface for the SES v2 SendEmail operation.
type SendEmailAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// Dialer hands out sessions over a SES v2 client. The client is created
// lazily on the first Dial so that AWS configuration errors surface as
// session failures.
type Dialer struct {
	cfg    Config
	client SendEmailAPI
}

// New creates a Dialer with the given configuration.
func New(cfg Config) *Dialer {
	return &Dialer{cfg: cfg}
}

// NewWithClient creates a Dialer around an existing client, used for testing.
func NewWithClient(client SendEmailAPI) *Dialer {
	return &Dialer{client: client}
}

// Dial loads the AWS configuration if needed and returns a session.
func (d *Dialer) Dial(ctx context.Context) (transport.Session, error) {
	if d.client == nil {
		client, err := newClient(ctx, d.cfg)
		if err != nil {
			return nil, err
		}
		d.client = client
	}
	return &session{client: d.client}, nil
}

// Name returns the transport name.
func (d *Dialer) Name() string {
	return "ses"
}

func newClient(ctx context.Context, cfg Config) (*sesv2.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error

	opts = append(opts, awsconfig.WithRegion(cfg.Region))

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return sesv2.NewFromConfig(awsCfg), nil
}

type session struct {
	client SendEmailAPI
}

// Send submits the message text as a raw SES message with one destination.
func (s *session) Send(ctx context.Context, from, to string, msg []byte) error {
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Content: &types.EmailContent{
			Raw: &types.RawMessage{
				Data: toCRLF(msg),
			},
		},
	}

	if _, err := s.client.SendEmail(ctx, input); err != nil {
		return fmt.Errorf("SES API request failed: %w", err)
	}
	return nil
}

func (s *session) Close() error {
	return nil
}

// toCRLF normalizes line endings to CRLF as required for raw messages.
func toCRLF(msg []byte) []byte {
	text := strings.ReplaceAll(string(msg), "\r\n", "\n")
	return []byte(strings.ReplaceAll(text, "\n", "\r\n"))
}
