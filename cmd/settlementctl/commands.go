package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/angelmondragon/activityhub-backend/internal/commissions"
	"github.com/angelmondragon/activityhub-backend/internal/referrals"
	"github.com/angelmondragon/activityhub-backend/pkg/db/models"
	"github.com/angelmondragon/activityhub-backend/pkg/enums"
	"github.com/angelmondragon/activityhub-backend/pkg/outbox"
)

const defaultDLQLimit = 50

type settler interface {
	Resettle(ctx context.Context, bookingID uuid.UUID) (*commissions.Settlement, error)
}

type dlqLister interface {
	List(ctx context.Context, filter outbox.DLQFilter) ([]models.OutboxDLQ, error)
	CountByReason(ctx context.Context) (map[enums.OutboxDLQErrorReason]int64, error)
}

type linkResolver interface {
	GetActiveLink(ctx context.Context, subject referrals.Subject) (*referrals.Link, error)
}

type app struct {
	settler settler
	dlq     dlqLister
	links   linkResolver
	close   func() error
}

type bootstrapFunc func(ctx context.Context) (*app, error)

func newRootCmd(boot bootstrapFunc) *cobra.Command {
	var output string
	root := &cobra.Command{
		Use:           "settlementctl",
		Short:         "Operate the booking settlement pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&output, "output", "o", "json", "Output format (json, yaml)")

	run := func(fn func(ctx context.Context, a *app, out io.Writer, format string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			format := strings.ToLower(strings.TrimSpace(output))
			if format != "json" && format != "yaml" {
				return fmt.Errorf("unsupported output format %q", output)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()
			a, err := boot(ctx)
			if err != nil {
				return err
			}
			if a.close != nil {
				defer a.close()
			}
			return fn(ctx, a, cmd.OutOrStdout(), format)
		}
	}

	root.AddCommand(resettleCmd(run))
	root.AddCommand(dlqCmd(run))
	root.AddCommand(linksCmd(run))
	return root
}

type runner func(fn func(ctx context.Context, a *app, out io.Writer, format string) error) func(*cobra.Command, []string) error

func resettleCmd(run runner) *cobra.Command {
	var bookingID string
	cmd := &cobra.Command{
		Use:   "resettle",
		Short: "Re-run commission settlement for one booking",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().StringVar(&bookingID, "booking-id", "", "Booking id to settle")
	_ = cmd.MarkFlagRequired("booking-id")
	cmd.RunE = run(func(ctx context.Context, a *app, out io.Writer, format string) error {
		id, err := uuid.Parse(strings.TrimSpace(bookingID))
		if err != nil {
			return fmt.Errorf("invalid --booking-id: %w", err)
		}
		settlement, err := a.settler.Resettle(ctx, id)
		if err != nil {
			return fmt.Errorf("resettle %s: %w", id, err)
		}
		return render(out, format, settlementView{
			BookingID:               id.String(),
			Total:                   settlement.Total,
			PlatformFee:             settlement.PlatformFeeGross,
			PlatformNet:             settlement.PlatformNet,
			ProviderAmount:          settlement.ProviderAmount,
			EstablishmentCommission: settlement.EstablishmentCommission,
			EstablishmentID:         uuidString(settlement.EstablishmentID),
			InvoiceNumber:           settlement.InvoiceNumber,
		})
	})
	return cmd
}

func dlqCmd(run runner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dlq",
		Short: "Inspect outbox events that will not be retried",
	}
	var (
		limit     int
		reason    string
		eventType string
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List the most recent dead-lettered events",
		Args:  cobra.NoArgs,
	}
	list.Flags().IntVarP(&limit, "limit", "n", defaultDLQLimit, "Maximum rows")
	list.Flags().StringVar(&reason, "reason", "", "Only rows with this reason (max_attempts, non_retryable)")
	list.Flags().StringVar(&eventType, "event-type", "", "Only rows of this outbox event type ("+eventTypeChoices()+")")
	list.RunE = run(func(ctx context.Context, a *app, out io.Writer, format string) error {
		filter := outbox.DLQFilter{Limit: limit}
		if filter.Limit <= 0 {
			filter.Limit = defaultDLQLimit
		}
		if raw := strings.TrimSpace(eventType); raw != "" {
			parsed, err := enums.ParseOutboxEventType(raw)
			if err != nil {
				return err
			}
			filter.EventType = parsed
		}
		if raw := strings.TrimSpace(reason); raw != "" {
			parsed, err := enums.ParseOutboxDLQErrorReason(raw)
			if err != nil {
				return err
			}
			filter.Reason = parsed
		}
		rows, err := a.dlq.List(ctx, filter)
		if err != nil {
			return fmt.Errorf("list dlq: %w", err)
		}
		views := make([]dlqView, 0, len(rows))
		for _, row := range rows {
			view := dlqView{
				EventID:      row.EventID.String(),
				EventType:    string(row.EventType),
				AggregateID:  row.AggregateID.String(),
				Reason:       string(row.ErrorReason),
				AttemptCount: row.AttemptCount,
				FailedAt:     row.FailedAt.UTC().Format(time.RFC3339),
			}
			if row.ErrorMessage != nil {
				view.Error = *row.ErrorMessage
			}
			views = append(views, view)
		}
		return render(out, format, views)
	})

	summary := &cobra.Command{
		Use:   "summary",
		Short: "Count dead-lettered events per reason",
		Args:  cobra.NoArgs,
	}
	summary.RunE = run(func(ctx context.Context, a *app, out io.Writer, format string) error {
		counts, err := a.dlq.CountByReason(ctx)
		if err != nil {
			return fmt.Errorf("summarize dlq: %w", err)
		}
		view := make(map[string]int64, len(counts))
		for r, n := range counts {
			view[string(r)] = n
		}
		return render(out, format, view)
	})

	cmd.AddCommand(list, summary)
	return cmd
}

func linksCmd(run runner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "links",
		Short: "Inspect establishment referral links",
	}
	var userID, sessionID string
	active := &cobra.Command{
		Use:   "active",
		Short: "Show the active referral link for a user or visitor session",
		Args:  cobra.NoArgs,
	}
	active.Flags().StringVar(&userID, "user-id", "", "Customer user id")
	active.Flags().StringVar(&sessionID, "session-id", "", "Visitor session id")
	active.MarkFlagsOneRequired("user-id", "session-id")
	active.RunE = run(func(ctx context.Context, a *app, out io.Writer, format string) error {
		subject := referrals.Subject{SessionID: strings.TrimSpace(sessionID)}
		if raw := strings.TrimSpace(userID); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				return fmt.Errorf("invalid --user-id: %w", err)
			}
			subject.UserID = &id
		}
		link, err := a.links.GetActiveLink(ctx, subject)
		if err != nil {
			return fmt.Errorf("lookup active link: %w", err)
		}
		return render(out, format, map[string]any{"link": link})
	})
	cmd.AddCommand(active)
	return cmd
}

type settlementView struct {
	BookingID               string          `json:"bookingId" yaml:"bookingId"`
	Total                   decimal.Decimal `json:"total" yaml:"total"`
	PlatformFee             decimal.Decimal `json:"platformFee" yaml:"platformFee"`
	PlatformNet             decimal.Decimal `json:"platformNet" yaml:"platformNet"`
	ProviderAmount          decimal.Decimal `json:"providerAmount" yaml:"providerAmount"`
	EstablishmentCommission decimal.Decimal `json:"establishmentCommission" yaml:"establishmentCommission"`
	EstablishmentID         string          `json:"establishmentId,omitempty" yaml:"establishmentId,omitempty"`
	InvoiceNumber           string          `json:"invoiceNumber,omitempty" yaml:"invoiceNumber,omitempty"`
}

type dlqView struct {
	EventID      string `json:"eventId" yaml:"eventId"`
	EventType    string `json:"eventType" yaml:"eventType"`
	AggregateID  string `json:"aggregateId" yaml:"aggregateId"`
	Reason       string `json:"reason" yaml:"reason"`
	Error        string `json:"error,omitempty" yaml:"error,omitempty"`
	AttemptCount int    `json:"attemptCount" yaml:"attemptCount"`
	FailedAt     string `json:"failedAt" yaml:"failedAt"`
}

func render(out io.Writer, format string, value any) error {
	if format == "yaml" {
		// decimal.Decimal has no yaml marshaler; normalize through json first.
		raw, err := json.Marshal(value)
		if err != nil {
			return err
		}
		var generic any
		if err := json.Unmarshal(raw, &generic); err != nil {
			return err
		}
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(generic); err != nil {
			return err
		}
		return enc.Close()
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}

func uuidString(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}

func eventTypeChoices() string {
	types := enums.OutboxEventTypes()
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}
