// nsqpub publishes a single message body to an nsqd topic. It is a thin
// cobra/viper CLI shell around nsq.Client.Publish.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/davidpelaez/gonsq/nsq"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "nsqpub <message>",
		Short: "Publish a single message to an nsqd topic over TCP",
		Args:  cobra.ExactArgs(1),
		RunE:  runPub,
	}

	cmd.Flags().String("addr", "127.0.0.1:4150", "nsqd TCP address")
	cmd.Flags().String("topic", "", "nsq topic (required)")
	cmd.Flags().Duration("timeout", 5*time.Second, "overall publish timeout")
	cmd.Flags().String("auth-token", "", "AUTH token, if nsqd requires one")
	cmd.Flags().String("cafile", "", "PEM CA bundle for TLS verification")
	cmd.Flags().Bool("tls", false, "request a TLS upgrade")
	cmd.MarkFlagRequired("topic")

	viper.BindPFlags(cmd.Flags())
	viper.SetEnvPrefix("nsqpub")
	viper.AutomaticEnv()

	return cmd
}

func runPub(cmd *cobra.Command, args []string) error {
	body := []byte(args[0])
	topic := viper.GetString("topic")

	log, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer log.Sync()

	cfg := nsq.NewConfigBuilder().TLSv1(viper.GetBool("tls")).Build()

	client := nsq.NewBuilder(viper.GetString("addr")).
		Config(cfg).
		Auth(viper.GetString("auth-token")).
		CAFile(viper.GetString("cafile")).
		Logger(log.Sugar()).
		Build()

	ctx, cancel := context.WithTimeout(context.Background(), viper.GetDuration("timeout"))
	defer cancel()

	resp, err := client.Publish(ctx, func() (*nsq.Command, error) {
		return nsq.Pub(topic, body), nil
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}

	fmt.Printf("published to %s: %s\n", topic, resp.Data)
	return nil
}
