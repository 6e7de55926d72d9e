package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xxxsen/scribe/internal/model"
)

func newQueryCmd() *cobra.Command {
	var (
		collection     string
		generate       bool
		k              int
		conversational bool
		temperature    float64
		maxTokens      int
	)
	cmd := &cobra.Command{
		Use:   "query [question]",
		Short: "ask one question against a collection and print the response as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := context.Background()
			a, err := newApp(ctx, cfg, "")
			if err != nil {
				return err
			}
			defer a.Close()

			req := model.QueryRequest{
				QueryText:        strings.Join(args, " "),
				CollectionID:     collection,
				InvokeGeneration: generate,
				Conversational:   conversational,
			}
			if cmd.Flags().Changed("k") {
				req.NumberOfResults = &k
			}
			if cmd.Flags().Changed("temperature") {
				req.Generation.Temperature = &temperature
			}
			if cmd.Flags().Changed("max-tokens") {
				req.Generation.MaxOutputTokens = &maxTokens
			}
			resp, qerr := a.queries.Query(ctx, req)
			if resp != nil {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				if err := enc.Encode(resp); err != nil {
					return err
				}
			}
			if qerr != nil {
				return fmt.Errorf("query failed: %w", qerr)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&collection, "collection", "", "collection id to query")
	cmd.Flags().BoolVar(&generate, "generate", false, "compose an answer with the generation model")
	cmd.Flags().IntVar(&k, "k", 10, "number of passages to retrieve, clamped to [1, 50]")
	cmd.Flags().BoolVar(&conversational, "conversational", false, "frame the question as a chat turn")
	cmd.Flags().Float64Var(&temperature, "temperature", 0, "generation temperature in [0, 1]")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 0, "maximum output tokens")
	return cmd
}
