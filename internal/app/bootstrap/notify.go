package bootstrap

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/wolfman30/medspa-inbox/internal/archive"
	appconfig "github.com/wolfman30/medspa-inbox/internal/config"
	"github.com/wolfman30/medspa-inbox/internal/notify"
	"github.com/wolfman30/medspa-inbox/pkg/logging"
)

// BuildNotifier assembles the configured notification sinks. awsCfg may be
// nil when no AWS-backed sink is configured.
func BuildNotifier(cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) *notify.Service {
	if logger == nil {
		logger = logging.Default()
	}
	var sinks []notify.Sink
	if sink := notify.NewWebhookSink(cfg.NotifyWebhookURL, cfg.TaskTimeout); sink != nil {
		sinks = append(sinks, sink)
	}
	if awsCfg != nil && cfg.NotifyQueueURL != "" {
		if sink := notify.NewSQSSink(sqs.NewFromConfig(*awsCfg), cfg.NotifyQueueURL); sink != nil {
			sinks = append(sinks, sink)
		}
	}
	if sink := buildEmailSink(cfg, awsCfg); sink != nil {
		sinks = append(sinks, sink)
	}

	svc := notify.NewService(logger, sinks...)
	names := make([]string, 0, len(sinks))
	for _, s := range sinks {
		names = append(names, s.Name())
	}
	logger.Info("notification sinks configured", "sinks", names)
	return svc
}

func buildEmailSink(cfg *appconfig.Config, awsCfg *aws.Config) *notify.EmailSink {
	if cfg.NotifyEmailTo == "" || cfg.NotifyEmailFrom == "" {
		return nil
	}
	if cfg.SendGridAPIKey != "" {
		sender := notify.NewSendGridSender(notify.SendGridConfig{APIKey: cfg.SendGridAPIKey, FromEmail: cfg.NotifyEmailFrom})
		return notify.NewEmailSink(sender, cfg.NotifyEmailTo)
	}
	if awsCfg == nil {
		return nil
	}
	sender := notify.NewSESSender(sesv2.NewFromConfig(*awsCfg), notify.SESConfig{FromEmail: cfg.NotifyEmailFrom})
	if sender == nil {
		return nil
	}
	return notify.NewEmailSink(sender, cfg.NotifyEmailTo)
}

// BuildArchive returns the webhook archive, or nil without a bucket.
func BuildArchive(cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) *archive.Store {
	if cfg.ArchiveBucket == "" || awsCfg == nil {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	client := s3.NewFromConfig(*awsCfg, func(o *s3.Options) {
		// LocalStack and MinIO only speak path-style.
		o.UsePathStyle = cfg.AWSEndpointOverride != ""
	})
	return archive.NewStore(client, cfg.ArchiveBucket, logger.Logger)
}
