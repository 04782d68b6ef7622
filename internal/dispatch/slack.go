package dispatch

import (
	"context"
	"fmt"
	"strings"

	"github.com/slack-go/slack"

	"github.com/refset/churn-decision-agent/internal/decision"
)

// Slack posts alerts to the customer success channel.
type Slack struct {
	client     *slack.Client
	channelID  string
	crmBaseURL string
}

func NewSlack(token, channelID, crmBaseURL string, opts ...slack.Option) *Slack {
	return &Slack{
		client:     slack.New(token, opts...),
		channelID:  channelID,
		crmBaseURL: strings.TrimRight(crmBaseURL, "/"),
	}
}

func (s *Slack) Deliver(ctx context.Context, customer decision.Record, a decision.Analysis) (Receipt, error) {
	text, blocks := slackMessage(customer, a, s.crmBaseURL)
	channel, ts, err := s.client.PostMessageContext(ctx, s.channelID,
		slack.MsgOptionText(text, false),
		slack.MsgOptionBlocks(blocks...),
	)
	if err != nil {
		return Receipt{}, fmt.Errorf("Slack API error: %w", err)
	}
	return Receipt{Reference: ts, Details: map[string]any{"channel": channel}}, nil
}

func mrkdwn(text string) *slack.TextBlockObject {
	return slack.NewTextBlockObject(slack.MarkdownType, text, false, false)
}

func slackMessage(customer decision.Record, a decision.Analysis, crmBaseURL string) (string, []slack.Block) {
	id := a.CustomerID
	signalLabel, signalValue := signalField(a)

	header := slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType,
		fmt.Sprintf("%s %s - %s", priorityEmoji(a.Decision.Priority), headline(a), id), true, false))

	fields := slack.NewSectionBlock(nil, []*slack.TextBlockObject{
		mrkdwn("*Customer ID:*\n" + id),
		mrkdwn("*Priority:*\n" + strings.ToUpper(string(a.Decision.Priority))),
		mrkdwn(fmt.Sprintf("*%s:*\n%s", signalLabel, signalValue)),
		mrkdwn("*Monthly Revenue:*\n" + money(customer["monthly_revenue"])),
	}, nil)

	reason := a.Decision.Reason
	if reason == "" {
		reason = "No specific action"
	}

	blocks := []slack.Block{
		header,
		fields,
		slack.NewSectionBlock(mrkdwn("*Root Cause:*\n"+primaryCause(a.Diagnosis)), nil, nil),
		slack.NewSectionBlock(mrkdwn("*Action Required:*\n"+reason), nil, nil),
	}

	if crmBaseURL != "" {
		button := slack.NewButtonBlockElement("view_customer", id,
			slack.NewTextBlockObject(slack.PlainTextType, "View Customer Details", false, false))
		button.URL = fmt.Sprintf("%s/customer/%s", crmBaseURL, id)
		button.Style = slack.StylePrimary
		blocks = append(blocks, slack.NewActionBlock("customer_actions", button))
	}

	return summaryLine(a), blocks
}
