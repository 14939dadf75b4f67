package cmd

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Builder-Lawyers/hub-provisioner/internal/application/events"
	"github.com/spf13/cobra"
)

var (
	customerID     string
	subscriptionID string
	email          string
	reason         string
)

var provisionCmd = &cobra.Command{
	Use:   "provision",
	Short: "Provision a customer hub synchronously",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		c, err := initContainer(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		return c.processors.ProvisionCustomer.Handle(ctx, events.ProvisionCustomer{
			PaymentCustomerID: customerID,
			SubscriptionID:    subscriptionID,
			Email:             email,
			CreatedAt:         time.Now().UTC(),
		})
	},
}

var deprovisionCmd = &cobra.Command{
	Use:   "deprovision",
	Short: "Tear down a customer hub synchronously",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		c, err := initContainer(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		return c.processors.DeprovisionCustomer.Handle(ctx, events.DeprovisionCustomer{
			PaymentCustomerID: customerID,
			Reason:            reason,
			CreatedAt:         time.Now().UTC(),
		})
	},
}

func init() {
	provisionCmd.Flags().StringVar(&customerID, "customer", "", "payment customer id")
	provisionCmd.Flags().StringVar(&subscriptionID, "subscription", "", "subscription id")
	provisionCmd.Flags().StringVar(&email, "email", "", "customer email")
	for _, f := range []string{"customer", "subscription", "email"} {
		_ = provisionCmd.MarkFlagRequired(f)
	}

	deprovisionCmd.Flags().StringVar(&customerID, "customer", "", "payment customer id")
	deprovisionCmd.Flags().StringVar(&reason, "reason", "operator request", "recorded with the teardown")
	_ = deprovisionCmd.MarkFlagRequired("customer")
}
