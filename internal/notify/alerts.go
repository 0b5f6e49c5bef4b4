// Package notify emails the parents when hardware does not follow a session.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/coocood/freecache"
	"github.com/rs/zerolog"

	"muenzbox/internal/config"
	"muenzbox/internal/models"
)

// alertCooldown suppresses repeated alerts for the same device class and action.
const alertCooldown = 15 * time.Minute

// Sender is the part of the SES client used here.
type Sender interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// Notifier sends hardware failure alerts.
type Notifier interface {
	HardwareFailure(ctx context.Context, child string, class models.DeviceClass, action string) error
}

// EmailNotifier sends alerts through Amazon SES.
type EmailNotifier struct {
	client  Sender
	from    string
	to      string
	enabled bool
	recent  *freecache.Cache
	logger  zerolog.Logger
}

// NewEmailNotifier creates a notifier. Without a sender or recipient
// address it is disabled and every alert is only logged.
func NewEmailNotifier(ctx context.Context, cfg config.AlertsConfig, logger zerolog.Logger) (*EmailNotifier, error) {
	logger = logger.With().Str("component", "alerts").Logger()
	if cfg.FromEmail == "" || cfg.ToEmail == "" {
		logger.Info().Msg("email alerts disabled: SES_FROM_EMAIL or ALERT_EMAIL not configured")
		return &EmailNotifier{logger: logger}, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	logger.Info().Str("from", cfg.FromEmail).Str("region", cfg.Region).Msg("email alerts enabled")
	return NewWithSender(sesv2.NewFromConfig(awsCfg), cfg.FromEmail, cfg.ToEmail, logger), nil
}

// NewWithSender creates an enabled notifier around client.
func NewWithSender(client Sender, from, to string, logger zerolog.Logger) *EmailNotifier {
	return &EmailNotifier{
		client:  client,
		from:    from,
		to:      to,
		enabled: true,
		recent:  freecache.NewCache(64 * 1024),
		logger:  logger,
	}
}

// IsEnabled returns whether alerts are sent
func (n *EmailNotifier) IsEnabled() bool {
	return n.enabled
}

// HardwareFailure reports that a lock or unlock call for child did not succeed.
func (n *EmailNotifier) HardwareFailure(ctx context.Context, child string, class models.DeviceClass, action string) error {
	if !n.enabled {
		n.logger.Warn().Str("child", child).Str("class", string(class)).Str("action", action).
			Msg("hardware failure, alert not sent")
		return nil
	}

	key := []byte(child + ":" + string(class) + ":" + action)
	if _, err := n.recent.Get(key); err == nil {
		n.logger.Debug().Str("child", child).Str("class", string(class)).Str("action", action).Msg("alert suppressed")
		return nil
	}

	subject := fmt.Sprintf("Münzbox: %s konnte nicht %s werden", deviceLabel(class), actionLabel(action))
	text := fmt.Sprintf(`Hallo,

bei der Sitzung von %s konnte das Gerät "%s" nicht %s werden.
Bitte prüfe Router und Konsole.

Zeit: %s

---
Automatische Nachricht der Münzbox.
`, child, deviceLabel(class), actionLabel(action), time.Now().Format("02.01.2006 15:04"))

	if err := n.send(ctx, subject, text); err != nil {
		return err
	}
	if err := n.recent.Set(key, []byte{1}, int(alertCooldown.Seconds())); err != nil {
		n.logger.Warn().Err(err).Str("child", child).Msg("failed to remember alert, cooldown not applied")
	}
	return nil
}

func (n *EmailNotifier) send(ctx context.Context, subject, textBody string) error {
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(n.from),
		Destination: &types.Destination{
			ToAddresses: []string{n.to},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{
					Data:    aws.String(subject),
					Charset: aws.String("UTF-8"),
				},
				Body: &types.Body{
					Text: &types.Content{
						Data:    aws.String(textBody),
						Charset: aws.String("UTF-8"),
					},
				},
			},
		},
	}

	result, err := n.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to send alert to %s: %w", n.to, err)
	}

	event := n.logger.Info().Str("to", n.to).Str("subject", subject)
	if result != nil && result.MessageId != nil {
		event = event.Str("message_id", *result.MessageId)
	}
	event.Msg("alert sent")
	return nil
}

func deviceLabel(class models.DeviceClass) string {
	if class == models.ClassSwitch {
		return "Nintendo Switch"
	}
	return "Fernseher"
}

func actionLabel(action string) string {
	if action == "lock" {
		return "gesperrt"
	}
	return "freigeschaltet"
}
