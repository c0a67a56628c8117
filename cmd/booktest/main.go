package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/clarasr/Syncread/internal/epub"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("Usage: booktest <epub_file>")
	}

	path := os.Args[1]
	fmt.Printf("Testing: %s\n\n", path)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	parser := epub.NewParser(logger)
	book, err := parser.ParseFile(path)
	if err != nil {
		log.Fatalf("Failed to parse archive: %v", err)
	}

	fmt.Printf("Title: %s\n", book.Title)
	fmt.Printf("Author: %s\n", book.Author)
	fmt.Printf("Language: %s\n", book.Language)
	fmt.Printf("Words: %d\n", book.WordCount())
	fmt.Printf("Text length: %d chars\n", len(book.PlainText))
	if book.Cover != nil {
		fmt.Printf("Cover: %d bytes\n", len(book.Cover.Data))
	}
	if book.Description != "" {
		desc := book.Description
		if len(desc) > 120 {
			desc = desc[:120] + "..."
		}
		fmt.Printf("Description: %s\n", desc)
	}
	fmt.Println()

	fmt.Printf("Chapters: %d\n", len(book.Chapters))
	for i, ch := range book.Chapters {
		if i < 10 { // Show first 10 chapters
			fmt.Printf("  [%d] %s (%d words)\n",
				ch.Index, ch.Title, len(strings.Fields(ch.Text)))
		}
	}
	if len(book.Chapters) > 10 {
		fmt.Printf("  ... and %d more chapters\n", len(book.Chapters)-10)
	}
}
