// Package kafka provides methods for initiating kafka-topics for the app and a kafka readiness-probing
package kafka

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	kafkago "github.com/segmentio/kafka-go"
)

// InitKafkaTopics - creates topics in kafka, already existing topics are fine
func InitKafkaTopics(ctx context.Context, brokerAddr string, attempts int, delay time.Duration, topics ...string) error {
	client := &kafkago.Client{
		Addr:    kafkago.TCP(brokerAddr),
		Timeout: 10 * time.Second,
	}

	req := kafkago.CreateTopicsRequest{
		Topics: make([]kafkago.TopicConfig, 0, len(topics)),
	}

	for _, t := range topics {
		topic := kafkago.TopicConfig{
			Topic:             t,
			NumPartitions:     1,
			ReplicationFactor: 1,
		}
		req.Topics = append(req.Topics, topic)
	}

	var lastErr error
	for i := 1; i <= max(attempts, 1); i++ {
		resp, err := client.CreateTopics(ctx, &req)
		switch {
		case err != nil:
			lastErr = err
			log.Printf("Failed to run topics creation request: %v\nWait %v before next try...", err, delay)
		default:
			if lastErr = topicErrors(resp.Errors); lastErr == nil {
				log.Println("All topics created successfully!")
				return nil
			}
			log.Printf("Topics creation failed: %v", lastErr)
		}

		if err := sleep(ctx, delay); err != nil {
			return errors.Join(err, lastErr)
		}
	}

	return fmt.Errorf("kafka topics were not created: %w", lastErr)
}

func topicErrors(errs map[string]error) error {
	var res []error
	for k, v := range errs {
		if v == nil || errors.Is(v, kafkago.TopicAlreadyExists) {
			continue
		}
		res = append(res, fmt.Errorf("topic %q: %w", k, v))
	}
	return errors.Join(res...)
}

// WaitKafkaReady - timeout given to kafka-service for getting fully functional
func WaitKafkaReady(ctx context.Context, brokerAddr string, attempts int, delay time.Duration) error {
	dialer := &kafkago.Dialer{Timeout: 5 * time.Second}

	var err error
	for i := 1; i <= max(attempts, 1); i++ {
		var conn *kafkago.Conn
		conn, err = dialer.DialContext(ctx, "tcp", brokerAddr)
		if err == nil {
			if errConn := conn.Close(); errConn != nil {
				log.Println("Failed to close connection after testing Kafka readyness:", errConn)
			}
			log.Println("Kafka is ready!")
			return nil
		}

		log.Printf("Kafka not ready (try #%d), retrying in %v...", i, delay)
		if sErr := sleep(ctx, delay); sErr != nil {
			return errors.Join(sErr, err)
		}
	}

	return fmt.Errorf("kafka is not reachable at %s: %w", brokerAddr, err)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
