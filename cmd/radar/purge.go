package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/nationradar/nation-radar/internal/seenset"
	"github.com/nationradar/nation-radar/internal/storage"
)

func newPurgeCmd(rt *runtime) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete every stored post, fingerprint and seen-set entry",
		Example: `  # Show what would be deleted
  radar purge

  # Delete it
  radar purge --yes`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return purge(cmd.Context(), cmd.OutOrStdout(), rt, yes)
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")
	return cmd
}

func purge(ctx context.Context, out io.Writer, rt *runtime, yes bool) error {
	store, err := storage.NewStore(rt.cfg.StorageType, rt.cfg.StoragePath())
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	defer store.Close()

	seen, err := seenset.New(seenset.Options{
		Type:      rt.cfg.SeenSetType,
		Path:      rt.cfg.SeenSetPath,
		RedisAddr: rt.cfg.RedisAddr,
		RedisKey:  rt.cfg.RedisKey,
	})
	if err != nil {
		return fmt.Errorf("init seen-set: %w", err)
	}
	defer seen.Close()

	posts, err := store.Count(ctx)
	if err != nil {
		return err
	}
	fingerprints, err := seen.Load(ctx)
	if err != nil {
		return fmt.Errorf("load seen-set: %w", err)
	}
	fmt.Fprintf(out, "%s store at %s: %d posts\n", rt.cfg.StorageType, rt.cfg.StoragePath(), posts)
	fmt.Fprintf(out, "%s seen-set: %d fingerprints\n", rt.cfg.SeenSetType, len(fingerprints))

	if !yes {
		return errors.New("refusing to purge without --yes")
	}

	if err := store.Purge(ctx); err != nil {
		return err
	}
	if err := seen.Clear(ctx); err != nil {
		return fmt.Errorf("clear seen-set: %w", err)
	}
	rt.log.WarnObj("store purged", "purge", map[string]any{
		"posts":        posts,
		"fingerprints": len(fingerprints),
	})
	fmt.Fprintln(out, "purged")
	return nil
}
