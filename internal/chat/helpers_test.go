package chat

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/streamchat/internal/ai"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, AutoMigrate(db))
	return db
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func countRows(t *testing.T, db *gorm.DB, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(model).Count(&n).Error)
	return n
}

// scriptedProvider streams fragments in order. With block set it holds the
// stream open until the context ends. With hold set it waits for hold to
// close and then finishes with err, ignoring the context.
type scriptedProvider struct {
	fragments []string
	err       error
	block     bool
	hold      chan struct{}
	model     string

	calls atomic.Int32
	mu    sync.Mutex
	last  []ai.Message
}

func (p *scriptedProvider) record(messages []ai.Message) {
	p.calls.Add(1)
	p.mu.Lock()
	p.last = append([]ai.Message(nil), messages...)
	p.mu.Unlock()
}

func (p *scriptedProvider) lastPrompt() []ai.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

func (p *scriptedProvider) ModelName() string { return p.model }

func (p *scriptedProvider) Chat(ctx context.Context, messages []ai.Message, cfg ai.GenerationConfig) (*ai.Completion, error) {
	p.record(messages)
	if p.err != nil {
		return nil, p.err
	}
	if p.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return &ai.Completion{Content: strings.Join(p.fragments, ""), Model: p.model}, nil
}

func (p *scriptedProvider) StreamChat(ctx context.Context, messages []ai.Message, cfg ai.GenerationConfig) (<-chan string, <-chan error) {
	p.record(messages)
	chunks := make(chan string)
	errs := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer close(errs)
		for _, f := range p.fragments {
			select {
			case chunks <- f:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
		if p.hold != nil {
			<-p.hold
		} else if p.block {
			<-ctx.Done()
			errs <- ctx.Err()
			return
		}
		if p.err != nil {
			errs <- p.err
		}
	}()
	return chunks, errs
}

// batchProvider hides StreamChat so the pipeline takes the batch path.
type batchProvider struct {
	inner *scriptedProvider
}

func (b batchProvider) Chat(ctx context.Context, messages []ai.Message, cfg ai.GenerationConfig) (*ai.Completion, error) {
	return b.inner.Chat(ctx, messages, cfg)
}

func userMsg(text string) InboundMessage {
	return InboundMessage{Role: "user", Parts: []Part{{Type: "text", Text: text}}}
}
