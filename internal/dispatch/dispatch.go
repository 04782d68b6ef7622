// Package dispatch delivers action decisions to Slack, Jira and customer
// email.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/refset/churn-decision-agent/internal/decision"
)

// Receipt is what a channel returns for a delivered action.
type Receipt struct {
	Reference string
	URL       string
	Details   map[string]any
}

// Channel delivers one kind of action.
type Channel interface {
	Deliver(ctx context.Context, customer decision.Record, a decision.Analysis) (Receipt, error)
}

// channelNames names each action's channel in "not configured" results.
var channelNames = map[decision.ActionType]string{
	decision.ActionAlert:  "Slack",
	decision.ActionTicket: "Jira",
	decision.ActionEmail:  "SendGrid",
}

// Dispatcher routes decisions to channels. A nil channel means the action
// type is known but not configured.
type Dispatcher struct {
	channels map[decision.ActionType]Channel
	log      *zap.Logger
	now      func() time.Time
}

type Channels struct {
	Alert  Channel
	Ticket Channel
	Email  Channel
}

func New(ch Channels, log *zap.Logger) *Dispatcher {
	d := &Dispatcher{
		channels: map[decision.ActionType]Channel{},
		log:      log.Named("dispatch"),
		now:      time.Now,
	}
	// Typed nils would defeat the "not configured" check.
	if ch.Alert != nil {
		d.channels[decision.ActionAlert] = ch.Alert
	}
	if ch.Ticket != nil {
		d.channels[decision.ActionTicket] = ch.Ticket
	}
	if ch.Email != nil {
		d.channels[decision.ActionEmail] = ch.Email
	}
	return d
}

// Configured lists the channels that can deliver.
func (d *Dispatcher) Configured() []string {
	var names []string
	for _, t := range []decision.ActionType{decision.ActionAlert, decision.ActionTicket, decision.ActionEmail} {
		if _, ok := d.channels[t]; ok {
			names = append(names, channelNames[t])
		}
	}
	return names
}

// Send executes the analysis' decision and never fails: every outcome,
// including channel errors, is reported in the result.
func (d *Dispatcher) Send(ctx context.Context, customer decision.Record, a decision.Analysis) decision.ActionResult {
	action := a.Decision.ActionType
	customerID := customer.CustomerID()
	if customerID == "" {
		customerID = a.CustomerID
	}
	log := d.log.With(zap.String("customer_id", customerID), zap.String("action_type", string(action)),
		zap.String("priority", string(a.Decision.Priority)))

	res := decision.ActionResult{
		ActionType: action,
		CustomerID: customerID,
		Priority:   a.Decision.Priority,
		Confidence: a.Decision.Confidence,
	}

	name, known := channelNames[action]
	ch, configured := d.channels[action]
	switch {
	case action == decision.ActionNone:
		res.Status = decision.StatusSkipped
		res.Reason = "No action required"
	case !known:
		res.Status = decision.StatusFailed
		res.Reason = fmt.Sprintf("Unknown action type: %s", action)
	case !configured:
		res.Status = decision.StatusFailed
		res.Reason = fmt.Sprintf("%s not configured", name)
	default:
		log.Info("Executing action")
		receipt, err := ch.Deliver(ctx, customer, a)
		if err != nil {
			log.Error("Action delivery failed", zap.Error(err))
			res.Status = decision.StatusFailed
			res.Reason = err.Error()
			break
		}
		res.Status = decision.StatusSuccess
		res.Reference = receipt.Reference
		res.URL = receipt.URL
		res.Details = receipt.Details
	}

	res.ExecutedAt = d.now()
	return res
}
