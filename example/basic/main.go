package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/siherrmann/briefings"
	"github.com/siherrmann/briefings/helper"
	"github.com/siherrmann/briefings/model"
)

var sampleBriefings = []struct {
	title string
	admin string
	date  string
	text  string
}{
	{
		title: "Press Briefing on Sanctions",
		admin: "Biden",
		date:  "2022-02-24",
		text: `Today the President announced a new package of sanctions against Russia.
The measures target the largest banks and restrict exports of advanced technology.
We are coordinating closely with our allies in Europe and with the government of Ukraine.`,
	},
	{
		title: "Remarks on the Economy",
		admin: "Obama",
		date:  "2010-06-11",
		text: `Job growth continued for the fifth straight month in the private sector.
The Recovery Act has supported infrastructure projects in every state.
We will keep working with Congress on small business lending.`,
	},
}

func main() {
	// Start a test PostgreSQL container
	teardown, dbPort, err := helper.MustStartPostgresContainer()
	if err != nil {
		log.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer teardown(context.Background())

	dbConfig := &helper.DatabaseConfiguration{
		Host:     "localhost",
		Port:     dbPort,
		Database: "database",
		Username: "user",
		Password: "password",
		Schema:   "public",
		SSLMode:  "disable",
	}

	// Local embeddings, no API key needed
	cfg := model.DefaultConfig()
	cfg.EmbeddingProvider = model.EmbeddingProviderHugot
	cfg.ChunkMaxTokens = 64
	cfg.ChunkOverlapTokens = 8

	b, err := briefings.New(cfg, dbConfig)
	if err != nil {
		log.Fatalf("Failed to create briefings: %v", err)
	}
	defer b.Close()

	ctx := context.Background()
	for _, sample := range sampleBriefings {
		published, _ := time.Parse("2006-01-02", sample.date)
		doc := &model.Document{
			Admin:       sample.admin,
			Title:       sample.title,
			URL:         "https://example.org/" + sample.date,
			PublishDate: &published,
			CleanText:   sample.text,
			Status:      model.DocumentStatusScraped,
		}
		if err := b.Documents.InsertDocument(ctx, doc); err != nil {
			log.Fatalf("Failed to insert document: %v", err)
		}
	}

	fmt.Println("Chunking documents...")
	chunkStats, err := b.ChunkPending(ctx, 10, 2, nil)
	if err != nil {
		log.Fatalf("Failed to chunk documents: %v", err)
	}
	fmt.Printf("Created %d chunks\n", chunkStats.Chunks)

	embedStats, err := b.EmbedPending(ctx, 100, nil)
	if err != nil {
		log.Fatalf("Failed to embed chunks: %v", err)
	}
	fmt.Printf("Embedded %d chunks\n", embedStats.Embedded)

	query := "What was said about Russia?"
	fmt.Printf("\nQuerying: %s\n", query)

	response, err := b.Search(ctx, model.SearchRequest{Query: query})
	if err != nil {
		log.Fatalf("Failed to search: %v", err)
	}

	fmt.Printf("\nFound %d results:\n", response.Pagination.TotalResults)
	for _, result := range response.Results {
		fmt.Printf("\n--- Result %d ---\n", result.Rank)
		fmt.Printf("Score: %.4f\n", result.Score)
		fmt.Printf("Title: %s (%s)\n", result.Title, result.Admin)
		fmt.Printf("Text: %s\n", result.ChunkText)
	}

	fmt.Println("\nBasic example completed successfully!")
}
