// nsqsub subscribes to an nsqd topic/channel and, for each message,
// invokes an executable named after the message's first space-separated
// token from a handlers directory.
package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

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
		Use:   "nsqsub",
		Short: "Subscribe to an nsqd topic/channel and route messages to handler executables",
		RunE:  runSub,
	}

	cmd.Flags().String("addr", "127.0.0.1:4150", "nsqd TCP address")
	cmd.Flags().String("topic", "", "nsq topic (required)")
	cmd.Flags().String("channel", "", "nsq channel (required)")
	cmd.Flags().String("handlers-dir", "", "directory containing one executable per event name (required)")
	cmd.Flags().Int64("rdy", 200, "max number of messages to allow in flight")
	cmd.MarkFlagRequired("topic")
	cmd.MarkFlagRequired("channel")
	cmd.MarkFlagRequired("handlers-dir")

	viper.BindPFlags(cmd.Flags())
	viper.SetEnvPrefix("nsqsub")
	viper.AutomaticEnv()

	return cmd
}

type eventRouter struct {
	handlersDir string
	log         *zap.SugaredLogger
}

func (r *eventRouter) handle(msg *nsq.Message) (*nsq.Command, error) {
	parts := strings.SplitN(string(msg.Body), " ", 2)
	eventName := parts[0]
	var eventArgs string
	if len(parts) > 1 {
		eventArgs = parts[1]
	}

	handlerPath := filepath.Join(r.handlersDir, eventName)
	if _, err := os.Stat(handlerPath); os.IsNotExist(err) {
		r.log.Infow("ignoring event, no handler found", "event", eventName)
		return nsq.Fin(msg.ID), nil
	}

	r.log.Infow("triggering event", "event", eventName)
	cmd := exec.Command(handlerPath, eventArgs)
	cmd.Dir = r.handlersDir

	output, err := cmd.Output()
	for _, line := range strings.Split(string(output), "\n") {
		if line != "" {
			r.log.Infow(line, "event", eventName)
		}
	}
	if err != nil {
		r.log.Warnw("handler failed", "event", eventName, "error", err)
		return nsq.Req(msg.ID, 0), nil
	}

	return nsq.Fin(msg.ID), nil
}

func runSub(cmd *cobra.Command, args []string) error {
	log, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer log.Sync()

	handlersDir, err := filepath.Abs(viper.GetString("handlers-dir"))
	if err != nil {
		return err
	}
	log.Sugar().Infow("using handlers-dir", "dir", handlersDir)

	router := &eventRouter{handlersDir: handlersDir, log: log.Sugar()}

	client := nsq.NewBuilder(viper.GetString("addr")).
		RDY(viper.GetInt64("rdy")).
		Logger(log.Sugar()).
		Build()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		<-sigChan
		cancel()
	}()

	return client.Consumer(ctx, viper.GetString("topic"), viper.GetString("channel"), router.handle)
}
