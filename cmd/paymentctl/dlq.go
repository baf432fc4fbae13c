package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/twmb/franz-go/pkg/kgo"

	"payment-lifecycle-engine/internal/adapters/messaging/kafka"
)

func newDLQCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dlq",
		Short: "Inspect and replay the lifecycle dead-letter topic",
	}

	var limit int
	view := &cobra.Command{
		Use:   "view",
		Short: "List dead-lettered records",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := c.config()
			if err != nil {
				return err
			}
			client, err := kgo.NewClient(
				kgo.SeedBrokers(cfg.Brokers()...),
				kgo.ConsumeTopics(cfg.Kafka.DLQTopic),
				kgo.FetchMaxWait(5*time.Second),
				kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
			)
			if err != nil {
				return fmt.Errorf("failed to create consumer: %w", err)
			}
			defer client.Close()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PARTITION:OFFSET\tKEY\tERROR_TYPE\tERROR_STRING")

			count := 0
			for count < limit {
				ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
				fetches := client.PollFetches(ctx)
				cancel()
				if fetches.IsClientClosed() || len(fetches.Records()) == 0 {
					break
				}
				fetches.EachRecord(func(r *kgo.Record) {
					if count >= limit {
						return
					}
					fmt.Fprintf(w, "%d:%d\t%s\t%s\t%s\n", r.Partition, r.Offset, r.Key,
						orNA(kafka.Header(r, "error_type")), orNA(kafka.Header(r, "error_string")))
					count++
				})
			}
			return w.Flush()
		},
	}
	view.Flags().IntVar(&limit, "limit", 10, "Number of records to show")

	var targetTopic string
	retry := &cobra.Command{
		Use:   "retry [partition:offset]",
		Short: "Republish one dead-lettered record to its original topic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			partition, offset, err := parsePartitionOffset(args[0])
			if err != nil {
				return err
			}
			cfg, err := c.config()
			if err != nil {
				return err
			}
			consumer, err := kgo.NewClient(
				kgo.SeedBrokers(cfg.Brokers()...),
				kgo.ConsumePartitions(map[string]map[int32]kgo.Offset{
					cfg.Kafka.DLQTopic: {partition: kgo.NewOffset().At(offset)},
				}),
			)
			if err != nil {
				return fmt.Errorf("failed to create consumer: %w", err)
			}
			defer consumer.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			fetches := consumer.PollRecords(ctx, 1)
			if err := fetches.Err(); err != nil {
				return fmt.Errorf("failed to read record: %w", err)
			}
			records := fetches.Records()
			if len(records) == 0 || records[0].Offset != offset {
				return fmt.Errorf("no record at %s", args[0])
			}
			record := records[0]

			topic := targetTopic
			if topic == "" {
				topic = kafka.Header(record, "original_topic")
			}
			if topic == "" {
				topic = cfg.Kafka.Topic
			}

			producer, err := kafka.NewProducer(cmd.Context(), cfg.Brokers())
			if err != nil {
				return err
			}
			defer producer.Close()

			replay := &kgo.Record{Topic: topic, Key: record.Key, Value: record.Value}
			if v := kafka.Header(record, kafka.HeaderEventType); v != "" {
				replay.Headers = []kgo.RecordHeader{{Key: kafka.HeaderEventType, Value: []byte(v)}}
			}
			if err := producer.ProduceSync(cmd.Context(), replay).FirstErr(); err != nil {
				return fmt.Errorf("failed to republish record: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "republished %s to %s\n", args[0], topic)
			return nil
		},
	}
	retry.Flags().StringVar(&targetTopic, "target-topic", "", "Topic to republish to (defaults to the original topic)")

	cmd.AddCommand(view, retry)
	return cmd
}

// parsePartitionOffset parses "partition:offset", e.g. "0:123".
func parsePartitionOffset(arg string) (int32, int64, error) {
	p, o, found := strings.Cut(arg, ":")
	if !found {
		return 0, 0, errors.New("expected partition:offset, e.g. 0:123")
	}
	partition, err := strconv.ParseInt(p, 10, 32)
	if err != nil || partition < 0 {
		return 0, 0, fmt.Errorf("invalid partition %q", p)
	}
	offset, err := strconv.ParseInt(o, 10, 64)
	if err != nil || offset < 0 {
		return 0, 0, fmt.Errorf("invalid offset %q", o)
	}
	return int32(partition), offset, nil
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
