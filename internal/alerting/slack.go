package alerting

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"
)

// htmlToMrkdwn maps the small HTML subset used in messages onto Slack mrkdwn.
var htmlToMrkdwn = strings.NewReplacer(
	"<b>", "*", "</b>", "*",
	"<u>", "_", "</u>", "_",
)

// SlackNotifier posts messages to a Slack channel through a bot token.
type SlackNotifier struct {
	client  *slack.Client
	channel string
	logger  zerolog.Logger
}

// NewSlackNotifier builds a Slack notifier. apiURL is optional and must end with a slash.
func NewSlackNotifier(name, token, channel, apiURL string, logger zerolog.Logger) *SlackNotifier {
	opts := []slack.Option{}
	if apiURL != "" {
		if !strings.HasSuffix(apiURL, "/") {
			apiURL += "/"
		}
		opts = append(opts, slack.OptionAPIURL(apiURL))
	}

	return &SlackNotifier{
		client:  slack.New(token, opts...),
		channel: channel,
		logger:  logger.With().Str("component", "notify_slack").Str("channel", name).Logger(),
	}
}

// Send posts text converted to mrkdwn. Entities (&amp; &lt; &gt;) are kept, Slack uses the same escapes.
func (n *SlackNotifier) Send(ctx context.Context, text string) error {
	converted := htmlToMrkdwn.Replace(text)
	_, ts, err := n.client.PostMessageContext(ctx, n.channel, slack.MsgOptionText(converted, false))
	if err != nil {
		return fmt.Errorf("post slack message: %w", err)
	}
	n.logger.Info().Str("ts", ts).Msg("message sent (Slack)")
	return nil
}

var _ Notifier = (*SlackNotifier)(nil)
