package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ashureev/mirror-pond/internal/config"
	"github.com/ashureev/mirror-pond/internal/memory"
	"github.com/ashureev/mirror-pond/internal/store"
)

type memoryFlags struct {
	backend string
	file    string
	db      string
}

func (f *memoryFlags) open(ctx context.Context) (*memory.Store, func(), error) {
	if f.backend == "" || (f.file == "" && f.db == "") {
		cfg, err := config.Load()
		if err != nil {
			return nil, nil, err
		}
		if f.backend == "" {
			f.backend = cfg.Pond.MemoryBackend
		}
		if f.file == "" {
			f.file = cfg.Pond.MemoryFile
		}
		if f.db == "" {
			f.db = cfg.Pond.MemoryDB
		}
	}
	repo, err := store.Open(ctx, f.backend, f.file, f.db)
	if err != nil {
		return nil, nil, fmt.Errorf("open memory: %w", err)
	}
	mem := memory.New(memory.Options{Repo: repo})
	mem.Load(ctx)
	return mem, func() { _ = repo.Close() }, nil
}

// travelerID accepts either a bare user hash or a full traveler id.
func travelerID(arg string) string {
	if strings.HasPrefix(arg, memory.UserPrefix) {
		return arg
	}
	return memory.UserPrefix + arg
}

func newMemoryCmd() *cobra.Command {
	flags := &memoryFlags{}
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Read pond memory (never writes)",
	}
	cmd.PersistentFlags().StringVar(&flags.backend, "backend", "", "memory backend: json or sqlite")
	cmd.PersistentFlags().StringVar(&flags.file, "file", "", "JSON memory file")
	cmd.PersistentFlags().StringVar(&flags.db, "db", "", "SQLite memory database")

	stats := &cobra.Command{
		Use:   "stats <user_hash>",
		Short: "Show a traveler's memory stats",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mem, closeFn, err := flags.open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()
			return printJSON(cmd.OutOrStdout(), mem.Stats(travelerID(args[0])))
		},
	}

	vows := &cobra.Command{
		Use:   "vows <user_hash>",
		Short: "List a traveler's vows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mem, closeFn, err := flags.open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()
			id := travelerID(args[0])
			list := mem.Vows(id)
			if len(list) == 0 && !mem.Stats(id).Exists {
				return fmt.Errorf("traveler %s not found in memory", id)
			}
			return printJSON(cmd.OutOrStdout(), list)
		},
	}

	cmd.AddCommand(stats, vows)
	return cmd
}
