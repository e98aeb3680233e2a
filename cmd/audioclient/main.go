package main

import (
	"context"
	"encoding/binary"
	"flag"
	"io"
	"log"
	"os"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/wrapperspb"

	grpcapi "consult-transcript-service/internal/api/grpc"
)

// WAV header is 44 bytes for standard PCM files
const wavHeaderSize = 44

// 100ms of 16kHz 16-bit mono audio
const chunkIntervalMs = 100

func main() {
	audioFile := flag.String("audio", "testdata/consultation-16khz.wav", "Path to WAV file (16kHz 16-bit mono)")
	serverAddr := flag.String("server", "localhost:50051", "gRPC server address")
	consultationID := flag.String("consultation", "consult-"+time.Now().Format("150405"), "Consultation ID")
	speaker := flag.String("speaker", "patient", "Speaker tag: patient or doctor")
	language := flag.String("language", "auto", "Consultation language (en, hi, te, ta, kn, mr, bn or auto)")
	realtime := flag.Bool("realtime", true, "Pace frames at real-time speed")
	flag.Parse()

	f, err := os.Open(*audioFile)
	if err != nil {
		log.Fatalf("Failed to open audio file: %v", err)
	}
	defer f.Close()

	header := make([]byte, wavHeaderSize)
	if _, err := io.ReadFull(f, header); err != nil {
		log.Fatalf("Failed to read WAV header: %v", err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		log.Fatal("Not a valid WAV file")
	}

	audioFormat := binary.LittleEndian.Uint16(header[20:22])
	numChannels := binary.LittleEndian.Uint16(header[22:24])
	sampleRate := binary.LittleEndian.Uint32(header[24:28])
	bitsPerSample := binary.LittleEndian.Uint16(header[34:36])

	log.Printf("WAV file: format=%d channels=%d sampleRate=%d bitsPerSample=%d",
		audioFormat, numChannels, sampleRate, bitsPerSample)

	if audioFormat != 1 { // PCM
		log.Fatal("Only PCM format supported")
	}
	if sampleRate != 16000 {
		log.Printf("Warning: Sample rate is %d Hz, expected 16000 Hz", sampleRate)
	}
	chunkSize := int(sampleRate) * int(bitsPerSample/8) * int(numChannels) * chunkIntervalMs / 1000

	conn, err := grpc.NewClient(*serverAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()

	log.Printf("Connected to %s", *serverAddr)

	client := grpcapi.NewClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx = metadata.AppendToOutgoingContext(ctx,
		grpcapi.MetadataConsultationID, *consultationID,
		grpcapi.MetadataSpeaker, *speaker,
		grpcapi.MetadataLanguage, *language,
	)

	stream, err := client.StreamAudio(ctx)
	if err != nil {
		log.Fatalf("Failed to create stream: %v", err)
	}

	log.Printf("Streaming audio: consultation=%s speaker=%s language=%s", *consultationID, *speaker, *language)

	audioChunk := make([]byte, chunkSize)
	var totalBytes int64
	var chunkNum int
	startTime := time.Now()

	for {
		n, err := f.Read(audioChunk)
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Fatalf("Failed to read audio: %v", err)
		}

		chunkNum++
		totalBytes += int64(n)

		if err := stream.Send(wrapperspb.Bytes(audioChunk[:n])); err != nil {
			log.Fatalf("Failed to send frame: %v", err)
		}

		if chunkNum%10 == 0 {
			log.Printf("Sent chunk %d (%d bytes total)", chunkNum, totalBytes)
		}

		if *realtime {
			time.Sleep(chunkIntervalMs * time.Millisecond)
		}
	}

	log.Printf("Finished streaming: %d chunks, %d bytes in %v", chunkNum, totalBytes, time.Since(startTime))
	log.Println("Closing stream, waiting for summary...")

	summary, err := stream.CloseAndRecv()
	if err != nil {
		log.Fatalf("Failed to receive summary: %v", err)
	}

	fields := summary.GetFields()
	log.Printf("Stream completed: consultation=%s utterances=%.0f analysisPending=%v",
		fields["consultationId"].GetStringValue(),
		fields["utterances"].GetNumberValue(),
		fields["analysisPending"].GetBoolValue())
	log.Printf("Transcript: %s", fields["transcript"].GetStringValue())
}
