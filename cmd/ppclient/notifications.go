package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"PPClient/service/natsx"
	"PPClient/tools/errs"

	"github.com/spf13/cobra"
)

func newNotificationsCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "notifications",
		Short: "Print notifications published by running clients",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(f)
			if err != nil {
				return err
			}
			if len(cfg.Nats.Servers) == 0 {
				return errs.ErrConfig.WrapMsg("nats.servers is empty")
			}
			cli, err := natsx.NewNatsxClient(natsx.NatsxConfig{Servers: cfg.Nats.Servers, Name: cfg.Nats.Name + "-tail"})
			if err != nil {
				return err
			}
			defer func() { _ = cli.Close() }()

			idem := natsx.NewMemIdem(10 * time.Minute)
			defer idem.Close()

			subject := cfg.Nats.Subject + ".>"
			if err := cli.Subscribe(subject, printNotification(cmd.OutOrStdout()), natsx.NatsxIdemMiddleware(idem, 0)); err != nil {
				return errs.WrapMsg(err, "subscribe", "subject", subject)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()
			return nil
		},
	}
}

func printNotification(w io.Writer) natsx.NatsxHandler {
	return func(_ context.Context, msg natsx.NatsxMessage) error {
		note, err := natsx.DecodeNotification(msg)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "%s chat=%d %q from=%d: %s\n",
			note.At.Format(time.RFC3339), note.ChatID, note.ChatName, note.SenderID, note.Preview)
		return err
	}
}
