// transcriptwatch tails the transcript and analysis topics and prints
// events as they arrive, optionally filtered to one consultation.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"consult-transcript-service/internal/models"
)

// watchEvent holds the union of transcript and analysis event fields.
type watchEvent struct {
	EventType      string                         `json:"eventType"`
	ConsultationID string                         `json:"consultationId"`
	UtteranceID    string                         `json:"utteranceId"`
	Speaker        models.Speaker                 `json:"speaker"`
	Text           string                         `json:"text"`
	Result         *models.ClinicalAnalysisResult `json:"result"`
	Error          string                         `json:"error"`
}

// truncate keeps the first maxLen runes of s.
func truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	return string([]rune(s)[:maxLen]) + "..."
}

// formatEvent renders one event line. ok is false when the payload is not
// an event or belongs to another consultation.
func formatEvent(payload []byte, consultationID string) (string, bool) {
	var ev watchEvent
	if err := json.Unmarshal(payload, &ev); err != nil || ev.EventType == "" {
		return "", false
	}
	if consultationID != "" && ev.ConsultationID != consultationID {
		return "", false
	}

	switch ev.EventType {
	case models.EventTranscriptPartial, models.EventTranscriptFinal:
		return fmt.Sprintf("[%s] %s %s %s: %s",
			ev.ConsultationID, ev.EventType, ev.UtteranceID, ev.Speaker, truncate(ev.Text, 120)), true
	case models.EventAnalysisCompleted:
		primary := ""
		if ev.Result != nil {
			primary = ev.Result.Diagnosis.Primary
		}
		return fmt.Sprintf("[%s] %s diagnosis=%q", ev.ConsultationID, ev.EventType, primary), true
	default:
		return fmt.Sprintf("[%s] %s %s", ev.ConsultationID, ev.EventType, ev.Error), true
	}
}

func consume(ctx context.Context, out io.Writer, mu *sync.Mutex, brokers []string, topic, consultationID string, since time.Duration) {
	// Partition reader without a consumer group so several watchers can tail at once
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   brokers,
		Topic:     topic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
	defer reader.Close()

	if err := reader.SetOffsetAt(ctx, time.Now().Add(-since)); err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("Failed to seek, reading from start")
	}

	log.Info().Str("topic", topic).Dur("since", since).Msg("Consuming topic")

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Str("topic", topic).Msg("Kafka read error")
			time.Sleep(time.Second)
			continue
		}

		line, ok := formatEvent(msg.Value, consultationID)
		if !ok {
			continue
		}
		mu.Lock()
		fmt.Fprintln(out, line)
		mu.Unlock()
	}
}

func main() {
	brokers := flag.String("brokers", "localhost:9092", "Kafka brokers (comma-separated)")
	topics := flag.String("topics", "consult.transcript.partial,consult.transcript.final,consult.analysis", "Topics to tail (comma-separated)")
	consultationID := flag.String("consultation", "", "Only show events for this consultation")
	since := flag.Duration("since", time.Hour, "How far back to start reading")
	flag.Parse()

	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, topic := range strings.Split(*topics, ",") {
		topic = strings.TrimSpace(topic)
		if topic == "" {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			consume(ctx, os.Stdout, &mu, strings.Split(*brokers, ","), topic, *consultationID, *since)
		}()
	}
	wg.Wait()
}
