package main

import (
	"fmt"

	"PPClient/module/user"

	"github.com/spf13/cobra"
)

func newIdentityCmd(f *rootFlags) *cobra.Command {
	identity := &cobra.Command{Use: "identity", Short: "Inspect or reset the persisted client id"}

	identity.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the stored client id",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ids, done, err := openIdentity(cmd, f)
			if err != nil {
				return err
			}
			defer done()
			id, ok, err := ids.Peek(cmd.Context())
			if err != nil {
				return err
			}
			if !ok {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no client id stored")
				return nil
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	})

	identity.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Replace the stored client id with a new one",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ids, done, err := openIdentity(cmd, f)
			if err != nil {
				return err
			}
			defer done()
			id, err := ids.Reset(cmd.Context())
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	})
	return identity
}

func openIdentity(cmd *cobra.Command, f *rootFlags) (*user.IdentityStore, func(), error) {
	cfg, err := loadConfig(f)
	if err != nil {
		return nil, nil, err
	}
	kv, closeKV, err := openKeyStore(cmd.Context(), cfg.Identity)
	if err != nil {
		return nil, nil, err
	}
	return user.NewIdentityStore(kv, cfg.Identity.Key, nil), func() { _ = closeKV() }, nil
}
