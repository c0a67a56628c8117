// Command dbinspect dumps the sync store of a (stopped) daemon: books,
// audiobooks, and sessions with their anchor and frontier state. Read-only;
// safe to point at a data directory you care about.
package main

import (
	"encoding/json/v2"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/clarasr/Syncread/internal/domain"
)

func main() {
	dataPath := os.Getenv("DATA_PATH")
	if dataPath == "" {
		dataPath = os.ExpandEnv("$HOME/Syncread/data")
	}
	dbPath := dataPath + "/db"

	opts := badger.DefaultOptions(dbPath).
		WithReadOnly(true).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		log.Fatalf("Failed to open database at %s: %v", dbPath, err)
	}
	defer db.Close()

	fmt.Println("=== Sync Store Inspection ===")
	fmt.Println()

	bookCount := 0
	fmt.Println("--- Books ---")
	err = forEachRecord(db, "book:", func(val []byte) error {
		var book domain.Book
		if err := json.Unmarshal(val, &book); err != nil {
			return err
		}
		bookCount++
		fmt.Printf("%s by %s\n", book.Title, book.Author)
		fmt.Printf("  ID: %s  Owner: %s\n", book.ID, book.OwnerID)
		fmt.Printf("  Chapters: %d  Words: %d  Chars: %d\n",
			len(book.Chapters), book.WordCount, book.CharCount)
		return nil
	})
	if err != nil {
		log.Fatalf("Error iterating books: %v", err)
	}

	audiobookCount := 0
	fmt.Println()
	fmt.Println("--- Audiobooks ---")
	err = forEachRecord(db, "audiobook:", func(val []byte) error {
		var ab domain.Audiobook
		if err := json.Unmarshal(val, &ab); err != nil {
			return err
		}
		audiobookCount++
		fmt.Printf("%s\n", ab.Title)
		fmt.Printf("  ID: %s  Owner: %s\n", ab.ID, ab.OwnerID)
		fmt.Printf("  Duration: %.0f sec  Format: %s  Size: %.1f MB\n",
			ab.DurationSec, ab.Format, float64(ab.Size)/(1<<20))
		return nil
	})
	if err != nil {
		log.Fatalf("Error iterating audiobooks: %v", err)
	}

	sessionCount := 0
	fmt.Println()
	fmt.Println("--- Sessions ---")
	err = forEachRecord(db, "session:", func(val []byte) error {
		var session domain.SyncSession
		if err := json.Unmarshal(val, &session); err != nil {
			return err
		}
		sessionCount++
		fmt.Printf("%s (%s, %s)\n", session.ID, session.Mode, session.Status)
		fmt.Printf("  Book: %s  Audiobook: %s\n", session.BookID, session.AudiobookID)
		fmt.Printf("  Progress: %d%%  Chunks: %d/%d  Anchors: %d\n",
			session.Progress, session.CurrentChunk, session.TotalChunks, len(session.Anchors))
		if session.Progressive != nil {
			fmt.Printf("  Frontier: word %d (%d chunks synced)\n",
				session.Progressive.SyncedUpToWord, session.Progressive.ChunksSynced)
		}
		if session.Playback.ProgressVersion > 0 {
			fmt.Printf("  Playback: %.1f sec (v%d)\n",
				session.Playback.CurrentTimeSec, session.Playback.ProgressVersion)
		}
		if session.ErrorMessage != "" {
			fmt.Printf("  Error: %s\n", session.ErrorMessage)
		}
		return nil
	})
	if err != nil {
		log.Fatalf("Error iterating sessions: %v", err)
	}

	fmt.Println()
	fmt.Println("=== Summary ===")
	fmt.Printf("Books: %d  Audiobooks: %d  Sessions: %d\n",
		bookCount, audiobookCount, sessionCount)
}

// forEachRecord visits every data record under the prefix, skipping the
// index keys that share it.
func forEachRecord(db *badger.DB, prefix string, fn func(val []byte) error) error {
	indexPrefix := prefix + "idx:"
	return db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
			item := it.Item()
			key := string(item.Key())
			if strings.HasPrefix(key, indexPrefix) {
				continue
			}
			if err := item.Value(fn); err != nil {
				log.Printf("Error reading %s: %v", key, err)
			}
		}
		return nil
	})
}
