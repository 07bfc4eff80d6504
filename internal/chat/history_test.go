package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestHistory_AppendAndLoadOrdered(t *testing.T) {
	db := openTestDB(t)
	h := NewHistory(db)
	ctx := context.Background()

	_, err := h.Append(ctx, "s1", RoleSystem, "be brief")
	require.NoError(t, err)
	require.NoError(t, h.AppendTurn(ctx, "s1",
		Turn{Role: RoleUser, Content: "hi"},
		Turn{Role: RoleAssistant, Content: "hello"},
	))
	_, err = h.Append(ctx, "other", RoleUser, "not mine")
	require.NoError(t, err)

	msgs, err := h.LoadOrdered(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, msgs, 3)

	assert.Equal(t, RoleSystem, msgs[0].Role)
	assert.Equal(t, RoleUser, msgs[1].Role)
	assert.Equal(t, "hi", msgs[1].Content)
	assert.Equal(t, RoleAssistant, msgs[2].Role)
	assert.Equal(t, "hello", msgs[2].Content)
	assert.Less(t, msgs[1].ID, msgs[2].ID)

	var rows []MessageRow
	require.NoError(t, db.Where("session_id = ?", "s1").Order("id ASC").Find(&rows).Error)
	assert.Equal(t, []string{"system", "human", "ai"}, []string{rows[0].MessageType, rows[1].MessageType, rows[2].MessageType})
	assert.JSONEq(t, `{"type":"human","content":"hi"}`, string(rows[1].Message))
}

func TestHistory_LoadUnknownSessionIsEmpty(t *testing.T) {
	h := NewHistory(openTestDB(t))

	msgs, err := h.LoadOrdered(context.Background(), "missing")
	require.NoError(t, err)
	assert.NotNil(t, msgs)
	assert.Empty(t, msgs)
}

func TestHistory_LoadIsRepeatable(t *testing.T) {
	h := NewHistory(openTestDB(t))
	ctx := context.Background()
	require.NoError(t, h.AppendTurn(ctx, "s1", Turn{Role: RoleUser, Content: "a"}, Turn{Role: RoleAssistant, Content: "b"}))

	first, err := h.LoadOrdered(ctx, "s1")
	require.NoError(t, err)
	second, err := h.LoadOrdered(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestHistory_AppendTurnAtKeepsExchangeOrder(t *testing.T) {
	h := NewHistory(openTestDB(t))
	ctx := context.Background()
	first := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	// the later exchange lands first; the earlier one is replayed afterwards
	require.NoError(t, h.AppendTurnAt(ctx, "s1", first.Add(time.Minute),
		Turn{Role: RoleUser, Content: "q2"}, Turn{Role: RoleAssistant, Content: "a2"}))
	require.NoError(t, h.AppendTurnAt(ctx, "s1", first,
		Turn{Role: RoleUser, Content: "q1"}, Turn{Role: RoleAssistant, Content: "a1"}))

	msgs, err := h.LoadOrdered(ctx, "s1")
	require.NoError(t, err)
	got := make([]string, 0, len(msgs))
	for _, m := range msgs {
		got = append(got, m.Content)
	}
	assert.Equal(t, []string{"q1", "a1", "q2", "a2"}, got)
	assert.True(t, msgs[0].CreatedAt.Before(msgs[1].CreatedAt))
}

func TestHistory_AppendTurnAtZeroTimeUsesNow(t *testing.T) {
	h := NewHistory(openTestDB(t))
	ctx := context.Background()
	before := time.Now().Add(-time.Second)

	require.NoError(t, h.AppendTurnAt(ctx, "s1", time.Time{}, Turn{Role: RoleUser, Content: "q"}))

	msgs, err := h.LoadOrdered(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].CreatedAt.After(before))
}

func TestHistory_DecodesForeignRows(t *testing.T) {
	db := openTestDB(t)
	rows := []MessageRow{
		{SessionID: "s1", Message: datatypes.JSON(`{"type":"assistant","text":"from text"}`), MessageType: "assistant"},
		{SessionID: "s1", Message: datatypes.JSON(`{"type":"tool","message":"from message"}`), MessageType: "tool"},
		{SessionID: "s1", Message: datatypes.JSON(`{"content":42}`), MessageType: "ai"},
	}
	for i := range rows {
		require.NoError(t, db.Create(&rows[i]).Error)
	}

	msgs, err := NewHistory(db).LoadOrdered(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, msgs, 3)

	assert.Equal(t, RoleAssistant, msgs[0].Role)
	assert.Equal(t, "from text", msgs[0].Content)
	assert.Equal(t, RoleUser, msgs[1].Role)
	assert.Equal(t, "from message", msgs[1].Content)
	// no type in the payload: the column decides
	assert.Equal(t, RoleAssistant, msgs[2].Role)
	assert.Equal(t, "", msgs[2].Content)
}

func TestHistory_ConcurrentAppend(t *testing.T) {
	db := openTestDB(t)
	h := NewHistory(db)

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := h.Append(context.Background(), "s1", RoleUser, fmt.Sprintf("m%d", i))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	msgs, err := h.LoadOrdered(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, msgs, n)
	for i := 1; i < len(msgs); i++ {
		assert.False(t, msgs[i].CreatedAt.Before(msgs[i-1].CreatedAt))
	}
}

func TestExtractText(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]any
		want string
	}{
		{"content first", map[string]any{"content": "c", "text": "t", "message": "m"}, "c"},
		{"empty content falls through", map[string]any{"content": "", "text": "t"}, "t"},
		{"message last", map[string]any{"message": "m"}, "m"},
		{"non string ignored", map[string]any{"content": 1, "text": []string{"x"}}, ""},
		{"nil map", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractText(tt.raw))
		})
	}
}

func TestMapRole(t *testing.T) {
	tests := map[string]Role{
		"ai":        RoleAssistant,
		"assistant": RoleAssistant,
		"human":     RoleUser,
		"user":      RoleUser,
		"system":    RoleSystem,
		"function":  RoleUser,
		"":          RoleUser,
	}
	for tag, want := range tests {
		assert.Equal(t, want, MapRole(tag), "tag %q", tag)
	}
}

func newMockHistory(t *testing.T) (*History, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	gdb, err := gorm.Open(mysql.New(mysql.Config{Conn: sqlDB, SkipInitializeWithVersion: true}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return NewHistory(gdb), mock
}

func TestHistory_LoadStoreUnavailable(t *testing.T) {
	h, mock := newMockHistory(t)
	mock.ExpectQuery("SELECT").WillReturnError(errors.New("connection refused"))

	_, err := h.LoadOrdered(context.Background(), "s1")
	require.ErrorIs(t, err, ErrStoreUnavailable)

	var se *StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "load", se.Op)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHistory_AppendTurnStoreUnavailable(t *testing.T) {
	h, mock := newMockHistory(t)
	mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

	err := h.AppendTurn(context.Background(), "s1", Turn{Role: RoleUser, Content: "a"})
	require.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorContains(t, err, "too many connections")
	assert.NoError(t, mock.ExpectationsWereMet())
}
