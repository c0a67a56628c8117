// Command synctest runs one book/audiobook pair through the whole sync
// pipeline against a scratch data directory. With -fake the provider call
// is replaced by a synthesizer that reads the book text back at narration
// speed; ffmpeg still runs for real.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/clarasr/Syncread/internal/align"
	"github.com/clarasr/Syncread/internal/audio"
	"github.com/clarasr/Syncread/internal/blob"
	"github.com/clarasr/Syncread/internal/config"
	"github.com/clarasr/Syncread/internal/domain"
	"github.com/clarasr/Syncread/internal/epub"
	"github.com/clarasr/Syncread/internal/logger"
	"github.com/clarasr/Syncread/internal/service"
	"github.com/clarasr/Syncread/internal/store"
	"github.com/clarasr/Syncread/internal/transcache"
	"github.com/clarasr/Syncread/internal/transcribe"
)

const owner = "synctest"

func main() {
	fake := flag.Bool("fake", false, "synthesize transcripts from the book text instead of calling the provider (progressive mode only)")
	mode := flag.String("mode", "", "sync mode: full or progressive (default: full, or progressive with -fake)")
	dataDir := flag.String("data", "", "data directory (default: a temp dir, removed on exit)")
	keep := flag.Bool("keep", false, "keep a temp data directory on exit")
	flag.Parse()

	if flag.NArg() < 2 {
		fmt.Fprintln(os.Stderr, "Usage: synctest [flags] <epub> <audio>")
		flag.PrintDefaults()
		os.Exit(1)
	}
	epubPath, audioPath := flag.Arg(0), flag.Arg(1)

	syncMode := domain.SyncMode(*mode)
	if *mode == "" {
		syncMode = domain.SyncModeFull
		if *fake {
			syncMode = domain.SyncModeProgressive
		}
	}
	if *fake && syncMode != domain.SyncModeProgressive {
		log.Fatal("-fake needs progressive mode: the synthesizer reads the audio range from progressive range files")
	}

	dir := *dataDir
	isTemp := false
	if dir == "" {
		tmp, err := os.MkdirTemp("", "synctest-")
		if err != nil {
			log.Fatalf("Failed to create temp dir: %v", err)
		}
		dir = tmp
		isTemp = true
	}
	fmt.Printf("Data dir: %s\n", dir)

	err := run(dir, epubPath, audioPath, syncMode, *fake)
	if isTemp && !*keep {
		os.RemoveAll(dir) //nolint:errcheck // Scratch dir
	}
	if err != nil {
		log.Fatalf("Sync test failed: %v", err)
	}
}

func run(dir, epubPath, audioPath string, mode domain.SyncMode, fake bool) error {
	ctx := context.Background()
	appLog := logger.New(logger.Config{Level: slog.LevelInfo})

	st, err := store.New(filepath.Join(dir, "db"), appLog.Logger, printEmitter{})
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck // Scratch store

	blobs, err := blob.NewFS(filepath.Join(dir, "blobs"))
	if err != nil {
		return err
	}
	cache, err := transcache.Open(filepath.Join(dir, "transcripts.db"), appLog.Logger)
	if err != nil {
		return err
	}
	defer cache.Close() //nolint:errcheck // Scratch cache

	var fakeProv *fakeProvider
	var provider service.Transcriber
	if fake {
		fakeProv = &fakeProvider{rate: 150.0 / 60.0}
		provider = fakeProv
	} else {
		key := os.Getenv("OPENAI_API_KEY")
		if key == "" {
			return fmt.Errorf("OPENAI_API_KEY is required without -fake")
		}
		provider = transcribe.New(openai.NewClient(key), appLog.Logger, transcribe.Options{})
	}

	svc := service.NewSyncService(service.Deps{
		Store:       st,
		Blobs:       blobs,
		Splitter:    audio.NewChunker(appLog.Logger, blobs, filepath.Join(dir, "work"), audio.ChunkerOptions{}),
		Prober:      audio.NewProber(appLog.Logger, ""),
		Parser:      epub.NewParser(appLog.Logger),
		Transcriber: provider,
		Aligner:     align.New(appLog.Logger, align.Options{}),
		Cache:       cache,
		Logger:      appLog.Logger,
		Workers:     config.WorkerConfig{MaxConcurrentSessions: 1},
	})
	if err := svc.Start(ctx); err != nil {
		return err
	}
	defer svc.Stop()

	book, err := svc.ImportBookFile(ctx, owner, epubPath)
	if err != nil {
		return fmt.Errorf("import book: %w", err)
	}
	fmt.Printf("Book: %s (%d words, %d chapters)\n", book.Title, book.WordCount, len(book.Chapters))
	if fakeProv != nil {
		fakeProv.setText(book.FullText())
	}

	audiobook, err := svc.ImportAudiobook(ctx, owner, audioPath)
	if err != nil {
		return fmt.Errorf("import audiobook: %w", err)
	}
	fmt.Printf("Audiobook: %s (%.0f sec, %s)\n", audiobook.Title, audiobook.DurationSec, audiobook.Format)

	session, err := svc.CreateSession(ctx, owner, service.CreateSessionParams{
		BookID:      book.ID,
		AudiobookID: audiobook.ID,
		Mode:        mode,
	})
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	fmt.Printf("Session: %s (%s)\n\n", session.ID, session.Mode)

	start := time.Now()
	pos := 0.0
	version := int64(0)
	for {
		time.Sleep(500 * time.Millisecond)

		current, err := svc.GetSession(ctx, owner, session.ID)
		if err != nil {
			return err
		}
		switch current.Status {
		case domain.SessionStatusComplete:
			return report(ctx, svc, current, audiobook, start)
		case domain.SessionStatusError:
			return fmt.Errorf("session failed: %s", current.ErrorMessage)
		}

		if mode == domain.SyncModeProgressive && current.Status == domain.SessionStatusProcessing {
			// Sweep a simulated listener forward so auto-advance pulls
			// the next word chunk.
			pos += audiobook.DurationSec / 40
			if pos > audiobook.DurationSec {
				pos = audiobook.DurationSec
			}
			version++
			if _, err := svc.Checkpoint(ctx, owner, session.ID, service.CheckpointParams{
				PositionSec: pos,
				Version:     version,
			}); err != nil {
				appLog.Warn("checkpoint rejected", "error", err)
			}
		}

		if time.Since(start) > 2*time.Hour {
			return fmt.Errorf("timed out waiting for the session to finish")
		}
	}
}

func report(ctx context.Context, svc *service.SyncService, session *domain.SyncSession, audiobook *domain.Audiobook, start time.Time) error {
	fmt.Printf("\n=== Sync Complete ===\n")
	fmt.Printf("Elapsed: %s\n", time.Since(start).Round(time.Millisecond))
	fmt.Printf("Chunks: %d\n", session.TotalChunks)
	fmt.Printf("Anchors: %d\n", len(session.Anchors))
	if session.Warning != "" {
		fmt.Printf("Warning: %s\n", session.Warning)
	}
	if len(session.Anchors) == 0 {
		return nil
	}

	first := session.Anchors[0]
	last := session.Anchors[len(session.Anchors)-1]
	fmt.Printf("Coverage: %.1fs/char %d .. %.1fs/char %d\n",
		first.AudioTime, first.CharIndex, last.AudioTime, last.CharIndex)

	fmt.Println("\nSpot checks:")
	for _, frac := range []float64{0.25, 0.5, 0.75} {
		t := audiobook.DurationSec * frac
		char, err := svc.PositionAtTime(ctx, owner, session.ID, t)
		if err != nil {
			return err
		}
		word, err := svc.WordAtTime(ctx, owner, session.ID, t)
		if err != nil {
			return err
		}
		fmt.Printf("  %3.0f%%  %6.0fs -> char %d (word %d)\n", frac*100, t, char, word)
	}
	return nil
}

// printEmitter prints session progress events as the pipeline emits them.
type printEmitter struct{}

// Emit implements store.EventEmitter.
func (printEmitter) Emit(event any) {
	if e, ok := event.(store.SessionEvent); ok && e.Type == store.EventSessionUpdated {
		fmt.Printf("  [%s] %3d%% %s\n", e.Status, e.Progress, e.Step)
	}
}

// fakeProvider synthesizes transcripts by reading the book text back at a
// fixed narration rate. It recovers each request's audio range from the
// range-file naming used by progressive extraction, so full-mode chunks
// are out of reach.
type fakeProvider struct {
	rate  float64 // words per second
	words []string
}

func (f *fakeProvider) setText(text string) {
	f.words = strings.Fields(text)
}

// Transcribe implements service.Transcriber.
func (f *fakeProvider) Transcribe(_ context.Context, audioPath string) (*domain.Transcript, error) {
	name := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	var startMs, durMs int
	if _, err := fmt.Sscanf(name, "range_%d_%d", &startMs, &durMs); err != nil {
		return nil, fmt.Errorf("fake provider cannot read a time range from %q", name)
	}
	startSec := float64(startMs) / 1000
	durSec := float64(durMs) / 1000

	first := int(math.Ceil(startSec * f.rate))
	last := int((startSec + durSec) * f.rate)
	if last > len(f.words) {
		last = len(f.words)
	}

	t := &domain.Transcript{ReportedDurationSec: durSec}
	var all []string
	for lo := first; lo < last; lo += 10 {
		hi := lo + 10
		if hi > last {
			hi = last
		}
		text := strings.Join(f.words[lo:hi], " ")
		t.Segments = append(t.Segments, domain.TranscriptSegment{
			StartSec: float64(lo)/f.rate - startSec,
			EndSec:   float64(hi)/f.rate - startSec,
			Text:     text,
		})
		all = append(all, text)
	}
	t.Text = strings.Join(all, " ")
	return t, nil
}

// TranscribeReader implements service.Transcriber.
func (f *fakeProvider) TranscribeReader(context.Context, io.Reader, string) (*domain.Transcript, error) {
	return nil, fmt.Errorf("fake provider supports progressive range files only")
}
