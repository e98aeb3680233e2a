package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	grpcapi "consult-transcript-service/internal/api/grpc"
)

func main() {
	serverAddr := flag.String("server", "localhost:50051", "gRPC server address")
	transcript := flag.String("transcript", "mujhe teen din se bukhar hai aur khansi bhi hai, raat ko sir dard hota hai", "Transcript to analyze")
	language := flag.String("language", "hi", "Transcript language")
	consultationID := flag.String("consultation", "", "Consultation ID; with an empty transcript its live transcript is analyzed")
	flag.Parse()

	conn, err := grpc.NewClient(*serverAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	log.Println("Connected to server")

	client := grpcapi.NewClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	in, err := structpb.NewStruct(map[string]interface{}{
		"transcript":     *transcript,
		"language":       *language,
		"consultationId": *consultationID,
	})
	if err != nil {
		log.Fatalf("failed to build request: %v", err)
	}

	out, err := client.AnalyzeTranscript(ctx, in)
	if err != nil {
		log.Fatalf("analysis failed: %v", err)
	}

	pretty, _ := json.MarshalIndent(out.AsMap(), "", "  ")
	log.Printf("Analysis:\n%s", pretty)
}
